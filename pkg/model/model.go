// Package model defines the Reasoner interface the planning and
// composition stages call into, plus the HTTP providers implementing it
// (OpenAI, Anthropic, Gemini, Ollama). Providers translate one neutral
// Request/Response pair to their wire format; everything above this
// package is provider-agnostic.
package model

import (
	"context"
	"fmt"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a neutral completion request.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int

	// ResponseJSON asks the provider for a JSON-only response where the
	// API supports it; providers without such a switch ignore it and the
	// caller parses tolerantly either way.
	ResponseJSON bool
}

// Response is a neutral completion response.
type Response struct {
	Content   string
	TokensIn  int
	TokensOut int
}

// TotalTokens returns prompt plus completion tokens.
func (r *Response) TotalTokens() int { return r.TokensIn + r.TokensOut }

// StreamChunk is one piece of a streaming completion. A chunk carries
// either text or a terminal error, never both.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// Reasoner is the language-model contract. Implementations must honor
// ctx cancellation promptly on both methods.
type Reasoner interface {
	// Complete performs a blocking completion.
	Complete(ctx context.Context, req Request) (*Response, error)

	// StreamComplete returns a channel of chunks. The channel is always
	// closed; a terminal failure arrives as a chunk with Err set.
	StreamComplete(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// Model returns the configured model identifier.
	Model() string

	Close() error
}

// Provider names accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// Config selects and tunes one reasoner provider.
type Config struct {
	Provider    string   `yaml:"provider" json:"provider" jsonschema:"enum=openai,enum=anthropic,enum=gemini,enum=ollama"`
	Model       string   `yaml:"model" json:"model"`
	APIKey      string   `yaml:"api_key" json:"api_key,omitempty"`
	Host        string   `yaml:"host" json:"host,omitempty"`
	Temperature *float64 `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens" json:"max_tokens,omitempty"`

	// TimeoutSeconds bounds one completion end to end; streaming reads
	// reset it per chunk.
	TimeoutSeconds int `yaml:"timeout" json:"timeout,omitempty"`
	MaxRetries     int `yaml:"max_retries" json:"max_retries,omitempty"`

	// PromptTokenBudget caps serialized prompt size; history and data
	// bundles are truncated to fit.
	PromptTokenBudget int `yaml:"prompt_token_budget" json:"prompt_token_budget,omitempty"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		switch c.Provider {
		case ProviderAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		case ProviderGemini:
			c.Model = "gemini-2.0-flash"
		case ProviderOllama:
			c.Model = "llama3.2"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.Host == "" {
		switch c.Provider {
		case ProviderOpenAI:
			c.Host = "https://api.openai.com/v1"
		case ProviderAnthropic:
			c.Host = "https://api.anthropic.com"
		case ProviderOllama:
			c.Host = "http://localhost:11434"
		}
	}
	if c.Temperature == nil {
		t := 0.7
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2000
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.PromptTokenBudget == 0 {
		c.PromptTokenBudget = 6000
	}
}

// Validate rejects unusable configurations.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("unknown reasoner provider %q", c.Provider)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("reasoner model is required")
	}
	if c.APIKey == "" && (c.Provider == ProviderAnthropic || c.Provider == ProviderGemini) {
		return fmt.Errorf("%s provider requires api_key", c.Provider)
	}
	if c.TimeoutSeconds < 0 || c.MaxTokens < 0 {
		return fmt.Errorf("reasoner timeout and max_tokens must be non-negative")
	}
	return nil
}

// temperature returns the configured temperature or the default.
func (c *Config) temperature() float64 {
	if c.Temperature == nil {
		return 0.7
	}
	return *c.Temperature
}
