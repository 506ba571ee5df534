package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"
)

// StructuralErrors collects the problems found by strict decoding:
// fields that no struct knows about and values of the wrong type.
type StructuralErrors struct {
	UnknownFields []string
	TypeErrors    []string
}

func (r *StructuralErrors) Valid() bool {
	return len(r.UnknownFields) == 0 && len(r.TypeErrors) == 0
}

// Format renders the errors as a multi-line message suitable for CLI
// output. Returns "" when there is nothing to report.
func (r *StructuralErrors) Format() string {
	if r.Valid() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration has structural errors:\n")

	if len(r.UnknownFields) > 0 {
		sb.WriteString("  unknown fields (typo or wrong nesting):\n")
		for _, field := range r.UnknownFields {
			fmt.Fprintf(&sb, "    - %s\n", field)
		}
	}
	if len(r.TypeErrors) > 0 {
		sb.WriteString("  type errors:\n")
		for _, msg := range r.TypeErrors {
			fmt.Fprintf(&sb, "    - %s\n", msg)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// ValidateStructure decodes the loaded tree with ErrorUnused so typos
// and misnested keys surface before the config is acted on. The plain
// unmarshal would silently drop them.
func ValidateStructure(k *koanf.Koanf) (*StructuralErrors, error) {
	result := &StructuralErrors{}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		ErrorUnused:      true,
		TagName:          "yaml",
		WeaklyTypedInput: false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(k.Raw()); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "has invalid keys:") || strings.Contains(errStr, "unused key") {
			result.UnknownFields = extractUnknownFields(errStr)
		} else {
			result.TypeErrors = append(result.TypeErrors, errStr)
		}
	}

	return result, nil
}

// extractUnknownFields pulls field names out of mapstructure's
// "... has invalid keys: a, b, c" message.
func extractUnknownFields(errMsg string) []string {
	var fields []string

	if idx := strings.Index(errMsg, "has invalid keys:"); idx != -1 {
		keys := errMsg[idx+len("has invalid keys:"):]
		for _, key := range strings.Split(keys, ",") {
			if key = strings.TrimSpace(key); key != "" {
				fields = append(fields, key)
			}
		}
	}

	if len(fields) == 0 {
		fields = []string{errMsg}
	}
	return fields
}
