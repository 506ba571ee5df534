// Package runtime assembles a running process from one config tree:
// vendor clients behind the shared rate limiter, the request pipeline,
// the orchestrating agent, and the observability manager. The CLI and
// tests go through here so wiring decisions live in exactly one place.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/periplo-ai/periplo/pkg/agent"
	"github.com/periplo-ai/periplo/pkg/collect"
	"github.com/periplo-ai/periplo/pkg/compose"
	"github.com/periplo-ai/periplo/pkg/config"
	"github.com/periplo-ai/periplo/pkg/extract"
	"github.com/periplo-ai/periplo/pkg/model"
	"github.com/periplo-ai/periplo/pkg/observability"
	"github.com/periplo-ai/periplo/pkg/plan"
	"github.com/periplo-ai/periplo/pkg/ratelimit"
	"github.com/periplo-ai/periplo/pkg/reasoning"
	"github.com/periplo-ai/periplo/pkg/session"
	"github.com/periplo-ai/periplo/pkg/upstream"
	"github.com/periplo-ai/periplo/pkg/upstream/amap"
	"github.com/periplo-ai/periplo/pkg/upstream/qweather"
)

const shutdownGrace = 5 * time.Second

// Runtime owns every long-lived component of one process.
type Runtime struct {
	config   *config.Config
	obs      *observability.Manager
	limiter  *ratelimit.Limiter
	reasoner model.Reasoner
	agent    *agent.Agent
}

// New wires a runtime from a finalized config. Vendor sections without
// keys are left unwired; the dispatcher then degrades those service
// kinds instead of the process refusing to start.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize observability: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("observability shutdown during failed startup", "error", err)
		}
	}

	limiter := ratelimit.New(cfg.RateLimit)

	reasoner, err := buildReasoner(cfg.Model)
	if err != nil {
		cleanup()
		return nil, err
	}

	clients, err := buildClients(cfg, limiter)
	if err != nil {
		cleanup()
		return nil, err
	}

	extractor := extract.New(cfg.Gazetteer)
	keywords := extractor.Keywords()
	keywords.DefaultDays = cfg.DefaultDays
	keywords.MaxDays = cfg.MaxDays

	ag, err := agent.New(agent.Config{
		Region:         cfg.Region,
		RequestTimeout: cfg.RequestTimeout,
		MaxPerUser:     int64(cfg.MaxConcurrentRequestsPerUser),
	}, agent.Components{
		Extractor: extractor,
		Builder:   reasoning.NewBuilder(reasoner, cfg.Region),
		Resolver:  plan.NewResolver(cfg.Region),
		Collector: collect.NewCollector(upstream.NewDispatcher(clients),
			collect.WithSpecTimeout(cfg.PerCallTimeout),
			collect.WithHintsTimeout(cfg.HintsTimeout)),
		Composer: compose.NewComposer(reasoner, cfg.Region),
		Sessions: session.NewStore(cfg.MaxHistoryTurns),
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build agent: %w", err)
	}

	slog.Info("runtime assembled",
		"region", cfg.Region,
		"reasoner", reasonerLabel(reasoner, cfg.Model),
		"weather", clients.Weather != nil,
		"amap", clients.POI != nil)

	return &Runtime{
		config:   cfg,
		obs:      obs,
		limiter:  limiter,
		reasoner: reasoner,
		agent:    ag,
	}, nil
}

// buildReasoner returns nil without error when the selected provider
// needs a credential and none is configured. The builder and composer
// treat a nil reasoner as "use the deterministic chains", which keeps
// offline runs useful. Ollama is local and keyless, so it always builds.
func buildReasoner(cfg model.Config) (model.Reasoner, error) {
	cfg.SetDefaults()
	if cfg.APIKey == "" && cfg.Provider != model.ProviderOllama {
		slog.Warn("no reasoner credentials, planning falls back to deterministic chains",
			"provider", cfg.Provider)
		return nil, nil
	}
	reasoner, err := model.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("build reasoner: %w", err)
	}
	return reasoner, nil
}

func buildClients(cfg *config.Config, limiter *ratelimit.Limiter) (upstream.Clients, error) {
	var clients upstream.Clients

	if cfg.Amap.Key != "" {
		ac, err := amap.NewClient(cfg.Amap, limiter)
		if err != nil {
			return clients, fmt.Errorf("amap client: %w", err)
		}
		clients.POI = ac
		clients.Navigation = ac
		clients.Traffic = ac
		clients.Hints = ac
	} else {
		slog.Warn("amap key not configured, poi/navigation/traffic/hints stay unwired")
	}

	if cfg.QWeather.Key != "" {
		qc, err := qweather.NewClient(cfg.QWeather, limiter)
		if err != nil {
			return clients, fmt.Errorf("qweather client: %w", err)
		}
		clients.Weather = qc
	} else {
		slog.Warn("qweather key not configured, weather stays unwired")
	}

	return clients, nil
}

func reasonerLabel(r model.Reasoner, cfg model.Config) string {
	if r == nil {
		return "none"
	}
	return cfg.Provider + "/" + cfg.Model
}

// Agent returns the orchestrator; the HTTP server and the chat REPL
// both serve requests through it.
func (r *Runtime) Agent() *agent.Agent { return r.agent }

// Config returns the config the runtime was built from.
func (r *Runtime) Config() *config.Config { return r.config }

// Limiter returns the shared upstream rate limiter.
func (r *Runtime) Limiter() *ratelimit.Limiter { return r.limiter }

// ApplyConfig applies the subset of a reloaded config that is safe to
// change live. Today that is the rate limits; everything else needs a
// restart, which is logged rather than silently ignored.
func (r *Runtime) ApplyConfig(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	r.limiter.Reconfigure(cfg.RateLimit)
	slog.Info("applied reloaded rate limits; other sections need a restart")
	return nil
}

// Close flushes telemetry and releases resources. Safe to call once the
// server has stopped accepting requests.
func (r *Runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := r.obs.Shutdown(ctx); err != nil {
		return fmt.Errorf("observability shutdown: %w", err)
	}
	return nil
}
