package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/periplo-ai/periplo/pkg/travel"
)

// thoughtWire is the JSON shape the model is asked to return for one step.
type thoughtWire struct {
	Step      int      `json:"step" mapstructure:"step" jsonschema:"required,description=Step number starting at 1"`
	Thought   string   `json:"thought" mapstructure:"thought" jsonschema:"required,description=What this step works out"`
	Keywords  []string `json:"keywords" mapstructure:"keywords" jsonschema:"description=Terms from the request this step hinges on"`
	APINeeds  []string `json:"api_needs" mapstructure:"api_needs" jsonschema:"description=Data services this step needs: weather poi navigation traffic crowd input_hints"`
	Reasoning string   `json:"reasoning" mapstructure:"reasoning" jsonschema:"description=Why this step matters"`
}

type chainWire struct {
	Thoughts []thoughtWire `json:"thoughts" mapstructure:"thoughts" jsonschema:"required"`
}

// serviceLookup is the closed table mapping api_needs strings to service
// kinds. Entries outside the table are dropped, never guessed.
var serviceLookup = map[string]travel.ServiceKind{
	"weather":     travel.ServiceWeather,
	"forecast":    travel.ServiceWeather,
	"poi":         travel.ServicePOI,
	"pois":        travel.ServicePOI,
	"places":      travel.ServicePOI,
	"attractions": travel.ServicePOI,
	"navigation":  travel.ServiceNavigation,
	"route":       travel.ServiceNavigation,
	"routing":     travel.ServiceNavigation,
	"directions":  travel.ServiceNavigation,
	"traffic":     travel.ServiceTraffic,
	"congestion":  travel.ServiceTraffic,
	"crowd":       travel.ServiceCrowd,
	"crowds":      travel.ServiceCrowd,
	"input_hints": travel.ServiceInputHints,
	"hints":       travel.ServiceInputHints,
	"suggestions": travel.ServiceInputHints,
}

// lookupServiceKind resolves one api_needs entry. Matching is
// case-insensitive and tolerates surrounding whitespace and hyphens.
func lookupServiceKind(s string) (travel.ServiceKind, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	kind, ok := serviceLookup[key]
	return kind, ok
}

// parseChain pulls the first JSON object out of raw and decodes it
// weakly, so numbers arriving as strings or scalars arriving where arrays
// belong do not fail the whole response.
func parseChain(raw string) (chainWire, error) {
	var wire chainWire

	obj, ok := firstJSONObject(raw)
	if !ok {
		return wire, fmt.Errorf("no JSON object in response")
	}

	var loose map[string]any
	if err := json.Unmarshal([]byte(obj), &loose); err != nil {
		return wire, fmt.Errorf("malformed JSON object: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &wire,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return wire, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(loose); err != nil {
		return wire, fmt.Errorf("failed to decode thought chain: %w", err)
	}
	return wire, nil
}

// firstJSONObject returns the first balanced {...} block in s, skipping
// braces inside string literals. Models often wrap the document in prose
// or markdown fences; everything around the block is ignored.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
