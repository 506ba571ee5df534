package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/periplo-ai/periplo/pkg/extract"
)

// chainSchemaJSON is the reflected contract embedded in the system prompt.
var chainSchemaJSON = buildChainSchema()

func buildChainSchema() string {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(&chainWire{})
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		// The reflected schema is static; if marshalling ever fails the
		// hand-written contract below keeps the prompt usable.
		return `{"thoughts":[{"step":1,"thought":"...","keywords":["..."],"api_needs":["..."],"reasoning":"..."}]}`
	}
	return string(data)
}

func systemPrompt(region string) string {
	return fmt.Sprintf(`You are the planning brain of a travel assistant for the %s area.
Read the traveller's request and lay out a short chain of reasoning steps.
Each step states one thing to work out, the keywords it hinges on, and the
data services it needs.

Valid api_needs values: weather, poi, navigation, traffic, crowd, input_hints.

Return a single JSON document matching this schema:

%s

Rules:
- 2 to 5 steps, numbered from 1.
- Request a service only when the step genuinely needs its data.
- Never invent places the traveller did not name or imply.`, region, chainSchemaJSON)
}

func userPrompt(utterance string, ex extract.Extracted) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Request:\n%s\n", utterance)

	if ex.Summary != "" {
		fmt.Fprintf(&b, "\nWhat we already extracted: %s\n", ex.Summary)
	}

	kw := ex.Keywords
	if names := locationNames(ex); len(names) > 0 {
		fmt.Fprintf(&b, "Places mentioned: %s\n", strings.Join(names, ", "))
	}
	if len(kw.Activities) > 0 {
		acts := make([]string, len(kw.Activities))
		for i, a := range kw.Activities {
			acts[i] = string(a)
		}
		fmt.Fprintf(&b, "Activity interests: %s\n", strings.Join(acts, ", "))
	}
	if kw.Route != nil {
		fmt.Fprintf(&b, "Stated route: %s to %s\n", kw.Route.Start, kw.Route.End)
	}
	fmt.Fprintf(&b, "Trip length: %d day(s)\n", kw.Days)

	tc := ex.Context
	if tc.Companions.Known() {
		fmt.Fprintf(&b, "Travelling party: %s\n", tc.Companions.Type)
	}
	if len(tc.Emotion.Moods) > 0 || len(tc.Emotion.Avoid) > 0 {
		fmt.Fprintf(&b, "Mood: %s; avoid: %s\n",
			joinMoods(tc.Emotion.Moods), joinAvoids(tc.Emotion.Avoid))
	}
	fmt.Fprintf(&b, "Budget level: %s\n", tc.Budget.Level)

	b.WriteString("\nLay out the reasoning steps for answering this request.")
	return b.String()
}

func locationNames(ex extract.Extracted) []string {
	var names []string
	for _, loc := range ex.Keywords.Locations {
		names = append(names, loc.Name)
	}
	return names
}

func joinMoods(moods []extract.Mood) string {
	if len(moods) == 0 {
		return "unstated"
	}
	parts := make([]string, len(moods))
	for i, m := range moods {
		parts[i] = string(m)
	}
	return strings.Join(parts, ", ")
}

func joinAvoids(avoid []extract.Avoidance) string {
	if len(avoid) == 0 {
		return "nothing in particular"
	}
	parts := make([]string, len(avoid))
	for i, a := range avoid {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}
