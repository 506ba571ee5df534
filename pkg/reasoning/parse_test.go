package reasoning

import (
	"testing"
)

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{
			name: "bare object",
			in:   `{"thoughts":[]}`,
			want: `{"thoughts":[]}`,
			ok:   true,
		},
		{
			name: "prose around the object",
			in:   "Sure, here is the plan:\n{\"thoughts\":[]}\nHope that helps!",
			want: `{"thoughts":[]}`,
			ok:   true,
		},
		{
			name: "markdown fence",
			in:   "```json\n{\"a\":1}\n```",
			want: `{"a":1}`,
			ok:   true,
		},
		{
			name: "nested braces",
			in:   `{"a":{"b":{"c":1}}} trailing`,
			want: `{"a":{"b":{"c":1}}}`,
			ok:   true,
		},
		{
			name: "braces inside strings",
			in:   `{"text":"use {curly} braces"} extra`,
			want: `{"text":"use {curly} braces"}`,
			ok:   true,
		},
		{
			name: "escaped quote inside string",
			in:   `{"text":"she said \"}\" loudly"}`,
			want: `{"text":"she said \"}\" loudly"}`,
			ok:   true,
		},
		{
			name: "no object at all",
			in:   "I cannot help with that.",
			ok:   false,
		},
		{
			name: "unbalanced",
			in:   `{"a": [1, 2`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := firstJSONObject(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseChainWeakTypes(t *testing.T) {
	raw := `Here you go:
{"thoughts":[
  {"step":"1","thought":"frame the trip","keywords":"duration","api_needs":[],"reasoning":"scope"},
  {"step":2.0,"thought":"find places","keywords":["Alfama"],"api_needs":"poi","reasoning":"anchors"}
]}`

	wire, err := parseChain(raw)
	if err != nil {
		t.Fatalf("parseChain: %v", err)
	}
	if len(wire.Thoughts) != 2 {
		t.Fatalf("thoughts = %d, want 2", len(wire.Thoughts))
	}
	if wire.Thoughts[0].Step != 1 || wire.Thoughts[1].Step != 2 {
		t.Errorf("steps = %d, %d", wire.Thoughts[0].Step, wire.Thoughts[1].Step)
	}
	if len(wire.Thoughts[0].Keywords) != 1 || wire.Thoughts[0].Keywords[0] != "duration" {
		t.Errorf("scalar keyword not widened: %v", wire.Thoughts[0].Keywords)
	}
	if len(wire.Thoughts[1].APINeeds) != 1 || wire.Thoughts[1].APINeeds[0] != "poi" {
		t.Errorf("scalar api_needs not widened: %v", wire.Thoughts[1].APINeeds)
	}
}

func TestParseChainRejectsProse(t *testing.T) {
	if _, err := parseChain("no structure here"); err == nil {
		t.Error("expected error for prose-only response")
	}
	if _, err := parseChain(`{"thoughts": [unquoted]}`); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLookupServiceKind(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"weather", "weather", true},
		{"POI", "poi", true},
		{" Navigation ", "navigation", true},
		{"input-hints", "input_hints", true},
		{"input hints", "input_hints", true},
		{"directions", "navigation", true},
		{"teleportation", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		kind, ok := lookupServiceKind(tt.in)
		if ok != tt.ok || string(kind) != tt.want {
			t.Errorf("lookupServiceKind(%q) = (%q, %v), want (%q, %v)",
				tt.in, kind, ok, tt.want, tt.ok)
		}
	}
}
