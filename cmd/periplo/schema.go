package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/periplo-ai/periplo/pkg/config"
)

// SchemaCmd generates the JSON Schema for the configuration tree.
// Output goes to stdout so it can be redirected into docs or editors.
type SchemaCmd struct {
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		// Inline all definitions (no $ref) so editors without resolver
		// support can still validate.
		DoNotReference: true,
	}

	schema := reflector.Reflect(&config.Config{})

	schema.ID = "https://periplo.dev/schemas/config.json"
	schema.Title = "Periplo Configuration Schema"
	schema.Description = "Complete configuration schema for the Periplo travel agent core"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	schema.Examples = []interface{}{
		map[string]interface{}{
			"region":       "Lisbon",
			"default_days": 1,
			"max_days":     7,
			"model": map[string]interface{}{
				"provider": "anthropic",
				"model":    "claude-sonnet-4-20250514",
				"api_key":  "${ANTHROPIC_API_KEY}",
			},
			"amap": map[string]interface{}{
				"key": "${AMAP_API_KEY}",
			},
			"qweather": map[string]interface{}{
				"key": "${QWEATHER_API_KEY}",
			},
			"ratelimit": map[string]interface{}{
				"default_qps": 3,
			},
		},
	}

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}

	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	return nil
}
