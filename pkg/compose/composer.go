package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/periplo-ai/periplo/pkg/extract"
	"github.com/periplo-ai/periplo/pkg/model"
	"github.com/periplo-ai/periplo/pkg/observability"
	"github.com/periplo-ai/periplo/pkg/reasoning"
	"github.com/periplo-ai/periplo/pkg/travel"
)

// DefaultDigestBudget caps the token count of the data digest embedded in
// the composition prompt.
const DefaultDigestBudget = 1500

// historyWindow is how many past turns the prompt replays.
const historyWindow = 2

// Input is everything one turn hands the composer.
type Input struct {
	Utterance string
	Extracted extract.Extracted
	Thoughts  []reasoning.Thought
	Bundle    travel.ResultBundle
	History   []HistoryTurn
}

// HistoryTurn is the conversational trace of one earlier turn.
type HistoryTurn struct {
	Utterance string
	Answer    string
}

// Output is the composed answer plus the analyses behind it. Degraded
// marks answers produced by the rule fallback instead of the model.
type Output struct {
	Answer   string
	Analyses []LocationAnalysis
	Degraded bool
}

// Composer turns collected data into the final answer. A nil reasoner is
// valid and yields rule-based answers only.
type Composer struct {
	reasoner     model.Reasoner
	analyzer     *Analyzer
	counter      *model.TokenCounter
	region       string
	topK         int
	digestBudget int
	tracer       trace.Tracer
}

// Option adjusts composer construction.
type Option func(*Composer)

// WithTopPOIs caps the ranked place list per location.
func WithTopPOIs(k int) Option {
	return func(c *Composer) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithDigestBudget overrides the digest token budget.
func WithDigestBudget(tokens int) Option {
	return func(c *Composer) {
		if tokens > 0 {
			c.digestBudget = tokens
		}
	}
}

// NewComposer builds a composer for the region.
func NewComposer(reasoner model.Reasoner, region string, opts ...Option) *Composer {
	if region == "" {
		region = "Lisbon"
	}
	c := &Composer{
		reasoner:     reasoner,
		region:       region,
		topK:         DefaultTopPOIs,
		digestBudget: DefaultDigestBudget,
		tracer:       observability.GetTracer("periplo.compose"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.analyzer = NewAnalyzer(c.region, c.topK)

	modelName := ""
	if reasoner != nil {
		modelName = reasoner.Model()
	}
	c.counter = model.NewTokenCounter(modelName)
	return c
}

// Compose analyses the bundle and writes the answer. It fails only on
// cancellation; any reasoner trouble degrades to the rule-based answer
// instead of aborting the turn.
func (c *Composer) Compose(ctx context.Context, in Input) (Output, error) {
	return c.ComposeStream(ctx, in, nil)
}

// ComposeStream is Compose with the answer also delivered through
// onDelta as the model generates it. A nil onDelta takes the blocking
// completion path; fallback answers arrive as a single delta.
func (c *Composer) ComposeStream(ctx context.Context, in Input, onDelta func(string)) (Output, error) {
	ctx, span := c.tracer.Start(ctx, "compose.answer",
		trace.WithAttributes(attribute.Int("compose.results", in.Bundle.Size())))
	defer span.End()

	analyses := c.analyzer.Analyze(in.Extracted, in.Bundle)
	out := Output{Analyses: analyses}

	if c.reasoner == nil {
		out.Answer, out.Degraded = c.fallback(in, analyses), true
		span.SetAttributes(attribute.Bool("compose.degraded", true))
		emit(onDelta, out.Answer)
		return out, nil
	}

	digest := c.counter.Truncate(BuildDigest(in.Bundle, analyses), c.digestBudget)
	answer, err := c.completeAnswer(ctx, model.Request{
		System:   composerSystem(c.region),
		Messages: []model.Message{{Role: model.RoleUser, Content: composerUser(in, digest)}},
	}, onDelta)
	switch {
	case travel.IsCanceled(err):
		return Output{}, travel.Classify(err)
	case err != nil:
		slog.Warn("composition failed, using rule-based answer", "error", err)
	case answer != "":
		out.Answer = answer
		return out, nil
	default:
		slog.Warn("composition returned empty content, using rule-based answer")
	}

	out.Answer, out.Degraded = c.fallback(in, analyses), true
	span.SetAttributes(attribute.Bool("compose.degraded", true))
	emit(onDelta, out.Answer)
	return out, nil
}

// completeAnswer runs one completion, streaming when a delta sink is
// given. A stream that breaks after text has already reached the caller
// keeps the partial answer; the record matches what the user saw.
func (c *Composer) completeAnswer(ctx context.Context, req model.Request, onDelta func(string)) (string, error) {
	if onDelta == nil {
		resp, err := c.reasoner.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(resp.Content), nil
	}

	stream, err := c.reasoner.StreamComplete(ctx, req)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			if travel.IsCanceled(chunk.Err) || b.Len() == 0 {
				return "", chunk.Err
			}
			slog.Warn("stream broke mid-answer, keeping partial text", "error", chunk.Err)
			break
		}
		if chunk.Text != "" {
			b.WriteString(chunk.Text)
			onDelta(chunk.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func emit(onDelta func(string), text string) {
	if onDelta != nil && text != "" {
		onDelta(text)
	}
}

func composerSystem(region string) string {
	return fmt.Sprintf(`You are a travel planner for the %s area writing the final reply to a traveller.

Use ONLY the data sections in the message. Rules:
- Never invent places, prices, opening hours, or weather not present in the data.
- If a section says something could not be fetched, say so plainly and plan around it.
- Organise the plan by day when the trip spans several days.
- Respect the traveller's stated budget, companions, and things to avoid.
- Be concrete and practical; a warm tone, no filler.`, region)
}

func composerUser(in Input, digest string) string {
	var b strings.Builder

	for _, turn := range tailTurns(in.History, historyWindow) {
		fmt.Fprintf(&b, "Earlier, the traveller asked: %s\n", turn.Utterance)
		fmt.Fprintf(&b, "You answered: %s\n\n", turn.Answer)
	}

	fmt.Fprintf(&b, "Request: %s\n", in.Utterance)
	if in.Extracted.Summary != "" {
		fmt.Fprintf(&b, "Intent: %s\n", in.Extracted.Summary)
	}
	if avoids := in.Extracted.Context.Emotion.Avoid; len(avoids) > 0 {
		fmt.Fprintf(&b, "Avoid: %s\n", joinAvoidances(avoids))
	}

	if len(in.Thoughts) > 0 {
		b.WriteString("\nPlanning notes:\n")
		for _, thought := range in.Thoughts {
			fmt.Fprintf(&b, "%d. %s\n", thought.Step, thought.Text)
		}
	}

	b.WriteString("\nCollected data:\n")
	b.WriteString(digest)
	b.WriteString("\n\nWrite the reply now.")
	return b.String()
}

func tailTurns(history []HistoryTurn, n int) []HistoryTurn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func joinAvoidances(avoids []extract.Avoidance) string {
	parts := make([]string, 0, len(avoids))
	for _, a := range avoids {
		parts = append(parts, string(a))
	}
	return strings.Join(parts, ", ")
}

// fallback writes a deterministic answer straight from the analyses. It
// reads flat next to model prose, but it is honest, grounded, and keeps
// the service useful when the model is down.
func (c *Composer) fallback(in Input, analyses []LocationAnalysis) string {
	var b strings.Builder

	if in.Extracted.Summary != "" {
		fmt.Fprintf(&b, "Here is what I found for your %s.\n", in.Extracted.Summary)
	} else {
		fmt.Fprintf(&b, "Here is what I found around %s.\n", c.region)
	}

	for _, a := range analyses {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s:\n", a.Location)
		if w := a.Weather; w != nil {
			fmt.Fprintf(&b, "- Weather: %s (%d/100 for being outside).\n", w.Summary, w.Score)
		}
		for i, poi := range a.TopPOIs {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "- Worth a visit: %s", poi.Name)
			if poi.Rating > 0 {
				fmt.Fprintf(&b, " (rated %.1f)", poi.Rating)
			}
			b.WriteString(".\n")
		}
		for _, tip := range a.Tips {
			fmt.Fprintf(&b, "- %s\n", tip)
		}
	}

	writeFallbackRoutes(&b, in.Bundle)
	writeFallbackHints(&b, in.Bundle)

	if gaps := Gaps(in.Bundle); len(gaps) > 0 {
		b.WriteString("\nHeads up: ")
		b.WriteString(strings.Join(gaps, "; "))
		b.WriteString(".\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeFallbackRoutes(b *strings.Builder, bundle travel.ResultBundle) {
	results := bundle.OKResults(travel.ServiceNavigation)
	if len(results) == 0 {
		return
	}
	b.WriteString("\nGetting around:\n")
	for _, r := range results {
		payload, ok := r.Payload.(travel.NavigationPayload)
		if !ok || len(payload.Routes) == 0 {
			continue
		}
		best := payload.Routes[0]
		fmt.Fprintf(b, "- %s to %s by %s: about %d min over %.1f km",
			payload.Origin, payload.Destination, payload.Mode,
			int(best.Duration.Round(time.Minute).Minutes()),
			float64(best.DistanceMeters)/1000)
		if best.Congestion != "" {
			fmt.Fprintf(b, ", traffic %s", best.Congestion)
		}
		b.WriteString(".\n")
	}
}

func writeFallbackHints(b *strings.Builder, bundle travel.ResultBundle) {
	results := bundle.OKResults(travel.ServiceInputHints)
	wrote := false
	for _, r := range results {
		payload, ok := r.Payload.(travel.HintsPayload)
		if !ok || len(payload.Hints) == 0 {
			continue
		}
		if !wrote {
			b.WriteString("\nPlaces I could not verify:\n")
			wrote = true
		}
		fmt.Fprintf(b, "- %q might be %s", payload.Keyword, payload.Hints[0].Name)
		if payload.Hints[0].District != "" {
			fmt.Fprintf(b, " in %s", payload.Hints[0].District)
		}
		b.WriteString(".\n")
	}
}
