// Package agent is the orchestration core. It turns one user utterance
// into an answer by running the fixed pipeline: extract, reason, plan,
// collect, compose, record. Stages never talk to each other directly;
// the agent owns the handoffs, the per-user concurrency gate, and the
// request deadline.
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/periplo-ai/periplo/pkg/collect"
	"github.com/periplo-ai/periplo/pkg/compose"
	"github.com/periplo-ai/periplo/pkg/extract"
	"github.com/periplo-ai/periplo/pkg/observability"
	"github.com/periplo-ai/periplo/pkg/plan"
	"github.com/periplo-ai/periplo/pkg/reasoning"
	"github.com/periplo-ai/periplo/pkg/session"
	"github.com/periplo-ai/periplo/pkg/travel"
)

const (
	// DefaultRequestTimeout bounds one Handle call end to end.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxPerUser serialises requests from the same user.
	DefaultMaxPerUser = 1
)

// Config tunes the orchestrator.
type Config struct {
	// Region names the served metro area. It is the fallback target
	// when an utterance names no place.
	Region string `yaml:"region" json:"region"`

	// RequestTimeout is the whole-request deadline applied when the
	// caller does not bring one.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// MaxPerUser caps in-flight requests per user id. Excess requests
	// queue rather than fail.
	MaxPerUser int64 `yaml:"max_per_user" json:"max_per_user"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxPerUser <= 0 {
		c.MaxPerUser = DefaultMaxPerUser
	}
}

// Components are the pipeline stages the agent coordinates. All fields
// are required.
type Components struct {
	Extractor *extract.Extractor
	Builder   *reasoning.Builder
	Resolver  *plan.Resolver
	Collector *collect.Collector
	Composer  *compose.Composer
	Sessions  *session.Store
}

// Request is one utterance to handle.
type Request struct {
	UserID string
	Text   string

	// IncludeThoughts asks for the reasoning chain and the extraction
	// result alongside the answer.
	IncludeThoughts bool

	// Deadline overrides the configured request timeout when set.
	Deadline time.Time
}

// Reply is the answer to one utterance.
type Reply struct {
	TurnID string `json:"turn_id"`
	Answer string `json:"answer"`

	// Degraded is set when the answer came from the rule fallback
	// rather than the reasoner.
	Degraded bool `json:"degraded,omitempty"`

	Thoughts  []reasoning.Thought `json:"thoughts,omitempty"`
	Extracted *extract.Extracted  `json:"extracted,omitempty"`
}

// Agent runs the pipeline. Safe for concurrent use.
type Agent struct {
	cfg    Config
	parts  Components
	tracer trace.Tracer

	mu    sync.Mutex
	gates map[string]*semaphore.Weighted
}

// New wires an agent over its pipeline stages.
func New(cfg Config, parts Components) (*Agent, error) {
	cfg.SetDefaults()
	switch {
	case parts.Extractor == nil:
		return nil, errors.New("agent: extractor is required")
	case parts.Builder == nil:
		return nil, errors.New("agent: thought builder is required")
	case parts.Resolver == nil:
		return nil, errors.New("agent: plan resolver is required")
	case parts.Collector == nil:
		return nil, errors.New("agent: collector is required")
	case parts.Composer == nil:
		return nil, errors.New("agent: composer is required")
	case parts.Sessions == nil:
		return nil, errors.New("agent: session store is required")
	}
	return &Agent{
		cfg:    cfg,
		parts:  parts,
		tracer: observability.GetTracer("periplo.agent"),
		gates:  make(map[string]*semaphore.Weighted),
	}, nil
}

// Handle answers one utterance for one user. It validates the input,
// serialises with the user's other in-flight requests, runs the
// pipeline under the request deadline, and appends the finished turn to
// the session.
//
// Upstream trouble never surfaces here: failed or timed-out fetches
// become gaps in a degraded answer. The returned error is limited to
// InvalidInput for rejected input, Canceled when the caller went away,
// and Internal for broken wiring.
func (a *Agent) Handle(ctx context.Context, req Request) (*Reply, error) {
	return a.handle(ctx, req, nil)
}

// HandleStream is Handle with the composed answer also delivered through
// onDelta as it is generated. The recorded turn and the returned Reply
// carry the same final text the deltas added up to.
func (a *Agent) HandleStream(ctx context.Context, req Request, onDelta func(string)) (*Reply, error) {
	return a.handle(ctx, req, onDelta)
}

func (a *Agent) handle(ctx context.Context, req Request, onDelta func(string)) (*Reply, error) {
	start := time.Now()

	userID := strings.TrimSpace(req.UserID)
	text := strings.TrimSpace(req.Text)
	if userID == "" {
		return a.fail(ctx, nil, start, travel.E(travel.ErrInvalidInput, "user id is required"))
	}
	if text == "" {
		return a.fail(ctx, nil, start, travel.E(travel.ErrInvalidInput, "empty utterance"))
	}

	ctx, span := a.tracer.Start(ctx, "agent.handle",
		trace.WithAttributes(
			attribute.String("agent.user", userID),
			attribute.Int("agent.text_len", len(text)),
		))
	defer span.End()

	var cancel context.CancelFunc
	if !req.Deadline.IsZero() {
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
	} else {
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
	}
	defer cancel()

	gate := a.gate(userID)
	if err := gate.Acquire(ctx, 1); err != nil {
		return a.fail(ctx, span, start, travel.Classify(err))
	}
	defer gate.Release(1)

	tsIn := time.Now().UTC()
	hist := a.parts.Sessions.Load(userID)

	ex := a.parts.Extractor.Extract(text)
	thoughts := a.parts.Builder.Build(ctx, text, ex)
	if err := abortErr(ctx); err != nil {
		return a.fail(ctx, span, start, err)
	}

	p := a.parts.Resolver.Resolve(thoughts, ex)
	span.SetAttributes(attribute.Int("agent.specs", len(p.Specs)))

	bundle := a.parts.Collector.Collect(ctx, p.Specs)
	if err := abortErr(ctx); err != nil {
		return a.fail(ctx, span, start, err)
	}

	out, err := a.parts.Composer.ComposeStream(ctx, compose.Input{
		Utterance: text,
		Extracted: ex,
		Thoughts:  thoughts,
		Bundle:    bundle,
		History:   historyTurns(hist),
	}, onDelta)
	if err != nil {
		return a.fail(ctx, span, start, travel.Classify(err))
	}

	rec := a.parts.Sessions.Append(userID, session.TurnRecord{
		Utterance: text,
		Extracted: ex,
		Thoughts:  thoughts,
		Plan:      p,
		Results:   bundle,
		Answer:    out.Answer,
		TsIn:      tsIn,
		TsOut:     time.Now().UTC(),
	})

	span.SetAttributes(attribute.Bool("agent.degraded", out.Degraded))
	span.SetStatus(codes.Ok, "")
	observability.RecordRequest(ctx, time.Since(start), "")

	reply := &Reply{
		TurnID:   rec.ID,
		Answer:   out.Answer,
		Degraded: out.Degraded,
	}
	if req.IncludeThoughts {
		reply.Thoughts = thoughts
		exCopy := ex
		reply.Extracted = &exCopy
	}
	return reply, nil
}

// fail records the outcome and returns the error. A nil span means the
// request was rejected before one was opened.
func (a *Agent) fail(ctx context.Context, span trace.Span, start time.Time, err *travel.Error) (*Reply, error) {
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(err.Kind))
	}
	observability.RecordRequest(ctx, time.Since(start), string(err.Kind))
	return nil, err
}

// gate returns the user's admission semaphore, creating it on first
// sight. Gates live for the process.
func (a *Agent) gate(userID string) *semaphore.Weighted {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.gates[userID]
	if !ok {
		g = semaphore.NewWeighted(a.cfg.MaxPerUser)
		a.gates[userID] = g
	}
	return g
}

// abortErr reports a caller-initiated cancellation. Deadline expiry is
// not an abort: the pipeline keeps going and composes from whatever the
// collector managed to fetch before the clock ran out.
func abortErr(ctx context.Context) *travel.Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return travel.Classify(ctx.Err())
	}
	return nil
}

func historyTurns(s session.Session) []compose.HistoryTurn {
	if len(s.History) == 0 {
		return nil
	}
	out := make([]compose.HistoryTurn, 0, len(s.History))
	for _, rec := range s.History {
		out = append(out, compose.HistoryTurn{Utterance: rec.Utterance, Answer: rec.Answer})
	}
	return out
}
