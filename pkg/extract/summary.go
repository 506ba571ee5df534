package extract

import (
	"fmt"
	"strings"
)

// Extracted bundles everything mined from one utterance. It is embedded in
// the turn record and fed to the planner and the prompts.
type Extracted struct {
	Keywords Keywords      `json:"keywords"`
	Context  TravelContext `json:"context"`
	Summary  string        `json:"intent_summary"`
}

// Extractor is the facade over the keyword and context extractors.
type Extractor struct {
	keywords *KeywordExtractor
	context  *ContextExtractor
}

// New builds an extractor over the given vocabulary; a nil gazetteer means
// the default region.
func New(gaz *Gazetteer) *Extractor {
	return &Extractor{
		keywords: NewKeywordExtractor(gaz),
		context:  NewContextExtractor(),
	}
}

// Region returns the configured region name.
func (e *Extractor) Region() string { return e.keywords.Region() }

// Keywords exposes the underlying keyword extractor.
func (e *Extractor) Keywords() *KeywordExtractor { return e.keywords }

// Extract mines one utterance. Deterministic, side-effect-free, never
// errors.
func (e *Extractor) Extract(text string) Extracted {
	kw := e.keywords.Extract(text)
	tc := e.context.Extract(text)
	return Extracted{
		Keywords: kw,
		Context:  tc,
		Summary:  Summarize(kw, tc, e.Region()),
	}
}

// Summarize renders a one-line deterministic intent summary used in
// prompts and echoed back to callers.
func Summarize(kw Keywords, tc TravelContext, region string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d-day trip", kw.Days)

	names := make([]string, 0, len(kw.Locations))
	for _, loc := range kw.Locations {
		names = append(names, loc.Name)
	}
	if len(names) > 0 {
		fmt.Fprintf(&b, " to %s", joinNatural(names))
	} else if region != "" {
		fmt.Fprintf(&b, " around %s", region)
	}

	switch tc.Companions.Type {
	case CompanionSolo:
		b.WriteString(", solo")
	case CompanionRomantic:
		if tc.Companions.PartnerLabel != "" {
			fmt.Fprintf(&b, ", with %s", tc.Companions.PartnerLabel)
		} else {
			b.WriteString(", with partner")
		}
	case CompanionFamily:
		b.WriteString(", with family")
	case CompanionFriends:
		b.WriteString(", with friends")
	case CompanionColleagues:
		b.WriteString(", with colleagues")
	}

	if len(kw.Activities) > 0 {
		acts := make([]string, 0, len(kw.Activities))
		for _, a := range kw.Activities {
			acts = append(acts, string(a))
		}
		fmt.Fprintf(&b, ", focused on %s", joinNatural(acts))
	}

	if kw.Route != nil {
		fmt.Fprintf(&b, ", route %s to %s", kw.Route.Start, kw.Route.End)
	}

	if tc.Budget.Amount > 0 {
		fmt.Fprintf(&b, ", budget %d (%s)", tc.Budget.Amount, tc.Budget.Level)
	} else if tc.Budget.Level != BudgetMedium {
		fmt.Fprintf(&b, ", %s budget", tc.Budget.Level)
	}

	return b.String()
}

func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
