package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/periplo-ai/periplo/pkg/model"
)

// Placeholder syntax accepted inside config values: ${VAR:-default},
// ${VAR}, and bare $VAR.
var envPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	simple      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) == 3 {
			if val := os.Getenv(parts[1]); val != "" {
				return val
			}
			return parts[2]
		}
		return match
	})

	s = envPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPatterns.braced.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	s = envPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPatterns.simple.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	return s
}

// parseValue re-types a substituted string so `qps: ${QPS:-3}` decodes as
// an int rather than "3".
func parseValue(value string) interface{} {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}
	return value
}

// ExpandEnvInData walks a decoded config tree and substitutes env
// placeholders in every string leaf.
func ExpandEnvInData(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		expanded := expandEnvVars(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return expanded
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = ExpandEnvInData(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = ExpandEnvInData(item)
		}
		return result
	default:
		return v
	}
}

// LoadEnvFiles loads .env.local then .env from the working directory.
// Missing files are fine; unreadable ones are not.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnvKeys fills vendor and model keys from the conventional
// environment variables when the config leaves them empty.
func ApplyEnvKeys(cfg *Config) {
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = ReasonerAPIKey(cfg.Model.Provider)
	}
	if cfg.Amap.Key == "" {
		cfg.Amap.Key = os.Getenv("AMAP_API_KEY")
	}
	if cfg.QWeather.Key == "" {
		cfg.QWeather.Key = os.Getenv("QWEATHER_API_KEY")
	}
}

// ReasonerAPIKey returns the conventional env key for a model provider.
func ReasonerAPIKey(provider string) string {
	switch provider {
	case model.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case model.ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case model.ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}
