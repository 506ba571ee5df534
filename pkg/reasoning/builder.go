package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/periplo-ai/periplo/pkg/extract"
	"github.com/periplo-ai/periplo/pkg/model"
	"github.com/periplo-ai/periplo/pkg/travel"
)

// Builder produces the thought chain for one turn. With a reasoner it asks
// the model; without one, or whenever the model fails or returns an empty
// chain, it synthesises the rule-based chain instead. Build never errors.
type Builder struct {
	reasoner model.Reasoner
	region   string
}

// NewBuilder wires a builder. A nil reasoner is valid and pins the builder
// to the rule-based chain.
func NewBuilder(reasoner model.Reasoner, region string) *Builder {
	if region == "" {
		region = "Lisbon"
	}
	return &Builder{reasoner: reasoner, region: region}
}

// Build returns the thought chain for the utterance. The chain is never
// empty and its steps count 1..n.
func (b *Builder) Build(ctx context.Context, utterance string, ex extract.Extracted) []Thought {
	if b.reasoner == nil {
		return Fallback(b.region, ex)
	}

	resp, err := b.reasoner.Complete(ctx, model.Request{
		System:       systemPrompt(b.region),
		Messages:     []model.Message{{Role: model.RoleUser, Content: userPrompt(utterance, ex)}},
		ResponseJSON: true,
	})
	if err != nil {
		slog.Warn("Thought chain completion failed, using rule-based chain",
			"model", b.reasoner.Model(),
			"error", err)
		return Fallback(b.region, ex)
	}

	wire, err := parseChain(resp.Content)
	if err != nil {
		slog.Warn("Thought chain response unparseable, using rule-based chain",
			"model", b.reasoner.Model(),
			"error", err)
		return Fallback(b.region, ex)
	}

	thoughts := fromWire(wire, ex, time.Now())
	if len(thoughts) == 0 {
		slog.Warn("Thought chain response carried no usable steps, using rule-based chain",
			"model", b.reasoner.Model())
		return Fallback(b.region, ex)
	}

	slog.Debug("Thought chain built from model output",
		"model", b.reasoner.Model(),
		"steps", len(thoughts),
		"services", ServicesOf(thoughts))
	return thoughts
}

// fromWire converts decoded steps to Thoughts: blank steps are dropped,
// api_needs outside the lookup table are dropped, and extractor terms are
// merged into each step's keywords by service kind.
func fromWire(wire chainWire, ex extract.Extracted, now time.Time) []Thought {
	thoughts := make([]Thought, 0, len(wire.Thoughts))
	for _, w := range wire.Thoughts {
		text := strings.TrimSpace(w.Thought)
		if text == "" {
			continue
		}
		t := Thought{
			Text:      text,
			Rationale: strings.TrimSpace(w.Reasoning),
			TS:        now,
		}
		for _, need := range w.APINeeds {
			if kind, ok := lookupServiceKind(need); ok {
				t.Services = appendKindOnce(t.Services, kind)
			}
		}
		for _, term := range w.Keywords {
			if term = strings.TrimSpace(term); term != "" {
				t.Keywords = appendTermOnce(t.Keywords, term)
			}
		}
		mergeExtractorTerms(&t, ex)
		thoughts = append(thoughts, t)
	}
	renumber(thoughts)
	return thoughts
}

// mergeExtractorTerms folds deterministic extractor output into the
// keywords of any step whose services consume it.
func mergeExtractorTerms(t *Thought, ex extract.Extracted) {
	for _, kind := range t.Services {
		switch kind {
		case travel.ServicePOI:
			for _, loc := range ex.Keywords.Locations {
				t.Keywords = appendTermOnce(t.Keywords, loc.Name)
			}
			for _, a := range ex.Keywords.Activities {
				t.Keywords = appendTermOnce(t.Keywords, string(a))
			}
		case travel.ServiceWeather, travel.ServiceNavigation, travel.ServiceTraffic:
			for _, loc := range ex.Keywords.Locations {
				t.Keywords = appendTermOnce(t.Keywords, loc.Name)
			}
		case travel.ServiceInputHints:
			for _, name := range ex.Keywords.UnverifiedLocations() {
				t.Keywords = appendTermOnce(t.Keywords, name)
			}
		}
	}
}

// Fallback synthesises the canonical rule-based chain from extractor
// output alone. Step 1 frames the trip, step 2 covers places and needs
// POI data, step 3 needs the forecast, and step 4 exists only when a
// route or at least two locations make legs worth planning.
func Fallback(region string, ex extract.Extracted) []Thought {
	now := time.Now()
	kw := ex.Keywords

	names := locationNames(ex)
	targets := strings.Join(names, ", ")

	var thoughts []Thought

	scope := "around " + region
	if len(names) > 0 {
		scope = "covering " + targets
	}
	thoughts = append(thoughts, Thought{
		Text:      fmt.Sprintf("Frame the request as a %d-day plan %s.", kw.Days, scope),
		Rationale: "the stated duration bounds how much ground the plan can cover",
		TS:        now,
	})

	poi := Thought{
		Services:  []travel.ServiceKind{travel.ServicePOI},
		Rationale: "points of interest anchor each block of the day",
		TS:        now,
	}
	if len(names) > 0 {
		poi.Text = fmt.Sprintf("Line up things worth doing in %s.", targets)
		poi.Keywords = append(poi.Keywords, names...)
	} else {
		poi.Text = fmt.Sprintf("No places named; line up the usual highlights %s.", scope)
		poi.Keywords = append(poi.Keywords, region)
	}
	for _, a := range kw.Activities {
		poi.Keywords = appendTermOnce(poi.Keywords, string(a))
	}
	thoughts = append(thoughts, poi)

	weather := Thought{
		Text:      "Check the forecast for each target before fixing outdoor time.",
		Services:  []travel.ServiceKind{travel.ServiceWeather},
		Rationale: "weather decides the indoor versus outdoor ordering",
		TS:        now,
	}
	if len(names) > 0 {
		weather.Keywords = append(weather.Keywords, names...)
	} else {
		weather.Keywords = append(weather.Keywords, region)
	}
	thoughts = append(thoughts, weather)

	if kw.Route != nil || len(kw.Locations) >= 2 {
		legs := Thought{
			Text:      "Work out the legs between stops and the traffic on them.",
			Services:  []travel.ServiceKind{travel.ServiceNavigation, travel.ServiceTraffic},
			Rationale: "travel time between stops shapes the order of the day",
			TS:        now,
		}
		if kw.Route != nil {
			legs.Keywords = append(legs.Keywords, kw.Route.Start, kw.Route.End)
		} else {
			legs.Keywords = append(legs.Keywords, names...)
		}
		thoughts = append(thoughts, legs)
	}

	renumber(thoughts)
	return thoughts
}
