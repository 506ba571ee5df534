// Package collect executes a resolved plan concurrently and gathers the
// outcomes into a ResultBundle. It is the concurrency core of a turn: one
// task per spec, per-provider pacing inside the clients, duplicate calls
// collapsed, and failures isolated so a bad upstream degrades the answer
// instead of aborting it.
package collect

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/periplo-ai/periplo/pkg/observability"
	"github.com/periplo-ai/periplo/pkg/travel"
)

const (
	// DefaultSpecTimeout bounds the wall time of one upstream call.
	DefaultSpecTimeout = 10 * time.Second

	// HintsSpecTimeout bounds input-hint lookups, which are advisory and
	// not worth waiting the full budget for.
	HintsSpecTimeout = 5 * time.Second
)

// Caller dispatches one spec to its upstream client. *upstream.Dispatcher
// is the production implementation.
type Caller interface {
	Call(ctx context.Context, spec travel.CallSpec) (travel.Payload, error)
}

// Collector fans a plan's specs out to the Caller and fans the results
// back in. Safe for concurrent use; one instance serves all requests so
// identical in-flight calls can share a single upstream round trip.
type Collector struct {
	caller       Caller
	specTimeout  time.Duration
	hintsTimeout time.Duration
	flights      singleflight.Group
	tracer       trace.Tracer
}

// Option adjusts collector construction.
type Option func(*Collector)

// WithSpecTimeout overrides the default per-spec wall clock bound.
func WithSpecTimeout(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.specTimeout = d
		}
	}
}

// WithHintsTimeout overrides the input-hints wall clock bound.
func WithHintsTimeout(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.hintsTimeout = d
		}
	}
}

// NewCollector builds a collector over caller.
func NewCollector(caller Caller, opts ...Option) *Collector {
	c := &Collector{
		caller:       caller,
		specTimeout:  DefaultSpecTimeout,
		hintsTimeout: HintsSpecTimeout,
		tracer:       observability.GetTracer("periplo.collect"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect runs every spec and returns one result per spec, keyed by kind
// and sorted canonically. It never fails as a whole: a spec that errors
// contributes an Err result, a canceled context marks the unfinished
// specs Canceled, and completed results are always kept.
func (c *Collector) Collect(ctx context.Context, specs []travel.CallSpec) travel.ResultBundle {
	ctx, span := c.tracer.Start(ctx, "collect.dispatch",
		trace.WithAttributes(attribute.Int("collect.specs", len(specs))))
	defer span.End()

	results := make([]travel.ServiceResult, len(specs))

	var g errgroup.Group
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = c.run(ctx, spec)
			return nil
		})
	}
	g.Wait()

	bundle := make(travel.ResultBundle, len(results))
	for _, r := range results {
		bundle.Add(r)
	}
	bundle.Canonical()

	span.SetAttributes(attribute.Int("collect.ok", countOK(results)))
	return bundle
}

// run executes one spec under its timeout. Duplicate (kind, key) specs in
// flight at the same time share one upstream call through the flight
// group; the flight is keyed on the dedup identity, so equal specs by
// definition want the same answer.
func (c *Collector) run(ctx context.Context, spec travel.CallSpec) travel.ServiceResult {
	if err := ctx.Err(); err != nil {
		return travel.Fail(spec, travel.Classify(err))
	}

	specCtx, cancel := context.WithTimeout(ctx, c.timeoutFor(spec.Kind))
	defer cancel()

	ch := c.flights.DoChan(spec.ID(), func() (any, error) {
		return c.caller.Call(specCtx, spec)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return travel.Fail(spec, travel.Classify(res.Err))
		}
		payload, ok := res.Val.(travel.Payload)
		if !ok {
			return travel.Fail(spec, travel.Ef(travel.ErrInternal, "caller returned %T", res.Val))
		}
		return travel.Ok(spec, payload)
	case <-specCtx.Done():
		return travel.Fail(spec, travel.Classify(specCtx.Err()))
	}
}

func (c *Collector) timeoutFor(kind travel.ServiceKind) time.Duration {
	if kind == travel.ServiceInputHints {
		return c.hintsTimeout
	}
	return c.specTimeout
}

func countOK(results []travel.ServiceResult) int {
	n := 0
	for _, r := range results {
		if r.OK() {
			n++
		}
	}
	return n
}
