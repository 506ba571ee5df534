package model

import "fmt"

// New constructs the reasoner selected by cfg.Provider.
func New(cfg Config) (Reasoner, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIReasoner(cfg)
	case ProviderAnthropic:
		return NewAnthropicReasoner(cfg)
	case ProviderGemini:
		return NewGeminiReasoner(cfg)
	case ProviderOllama:
		return NewOllamaReasoner(cfg)
	default:
		return nil, fmt.Errorf("unknown reasoner provider %q", cfg.Provider)
	}
}
