// Package ratelimit meters upstream calls with one token bucket per
// provider identity. Buckets refill continuously at the configured QPS and
// hold at most one second of burst.
//
// Waiting is cooperative: Acquire reserves its slot at call time through
// rate.Limiter, so a token already due to a waiter cannot be taken by a
// later arrival, and cancellation of the caller's context releases the
// reservation.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/periplo-ai/periplo/pkg/observability"
	"github.com/periplo-ai/periplo/pkg/travel"
)

// DefaultQPS is the per-provider cap applied when configuration does not
// override it.
const DefaultQPS = 3

// Config sets per-provider request rates. Keys of PerProvider are provider
// names (weather, poi, navigation, traffic, geocode, hints).
type Config struct {
	DefaultQPS  int            `yaml:"default_qps" json:"default_qps,omitempty" jsonschema:"minimum=1,default=3"`
	PerProvider map[string]int `yaml:"per_provider" json:"per_provider,omitempty"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.DefaultQPS <= 0 {
		c.DefaultQPS = DefaultQPS
	}
}

// Validate rejects unknown provider names and non-positive rates.
func (c *Config) Validate() error {
	if c.DefaultQPS < 0 {
		return fmt.Errorf("default_qps must be positive, got %d", c.DefaultQPS)
	}
	for name, qps := range c.PerProvider {
		if !travel.Provider(name).Valid() {
			return fmt.Errorf("unknown provider %q in per_provider", name)
		}
		if qps <= 0 {
			return fmt.Errorf("per_provider.%s must be positive, got %d", name, qps)
		}
	}
	return nil
}

// Limiter is a set of token buckets, one per provider. Safe for concurrent
// use by any number of request pipelines.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[travel.Provider]*rate.Limiter
	defQPS  int
}

// New builds a limiter with one bucket per known provider.
func New(cfg Config) *Limiter {
	cfg.SetDefaults()
	l := &Limiter{
		buckets: make(map[travel.Provider]*rate.Limiter, len(travel.Providers())),
		defQPS:  cfg.DefaultQPS,
	}
	for _, p := range travel.Providers() {
		qps := cfg.DefaultQPS
		if override, ok := cfg.PerProvider[string(p)]; ok && override > 0 {
			qps = override
		}
		l.buckets[p] = rate.NewLimiter(rate.Limit(qps), qps)
	}
	return l
}

func (l *Limiter) bucket(p travel.Provider) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[p]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[p]; ok {
		return b
	}
	b = rate.NewLimiter(rate.Limit(l.defQPS), l.defQPS)
	l.buckets[p] = b
	return b
}

// Acquire consumes one token for p, waiting until one is available or ctx
// ends. The token is spent whether or not the subsequent call succeeds;
// retries must acquire again.
func (l *Limiter) Acquire(ctx context.Context, p travel.Provider) error {
	start := time.Now()
	err := l.bucket(p).Wait(ctx)
	observability.RecordRateLimitWait(string(p), time.Since(start))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Wait refuses up front when the wait would outlive the deadline.
		return travel.Wrap(travel.ErrTimeout, "rate wait exceeds deadline for "+string(p), err)
	}
	return nil
}

// Allow consumes a token for p only if one is immediately available.
func (l *Limiter) Allow(p travel.Provider) bool {
	return l.bucket(p).Allow()
}

// SetQPS reconfigures one provider's bucket at runtime. Pending waiters
// observe the new rate.
func (l *Limiter) SetQPS(p travel.Provider, qps int) {
	if qps <= 0 {
		return
	}
	b := l.bucket(p)
	b.SetLimit(rate.Limit(qps))
	b.SetBurst(qps)
}

// QPS returns the configured rate for p.
func (l *Limiter) QPS(p travel.Provider) int {
	return int(l.bucket(p).Limit())
}

// Reconfigure applies a new config to every bucket, for config hot reload.
func (l *Limiter) Reconfigure(cfg Config) {
	cfg.SetDefaults()
	l.mu.Lock()
	l.defQPS = cfg.DefaultQPS
	l.mu.Unlock()
	for _, p := range travel.Providers() {
		qps := cfg.DefaultQPS
		if override, ok := cfg.PerProvider[string(p)]; ok && override > 0 {
			qps = override
		}
		l.SetQPS(p, qps)
	}
}
