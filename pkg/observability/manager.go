// Package observability wires OpenTelemetry tracing and Prometheus-backed
// metrics for the agent. Both are disabled by default; when disabled, the
// tracer is a noop and every metric record is a cheap nil check.
package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Config groups the tracing and metrics settings.
type Config struct {
	Tracing TracerConfig  `yaml:"tracing" json:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics,omitempty"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	c.Tracing.SetDefaults()
}

// Manager owns the tracer and meter providers for one process.
type Manager struct {
	tracerProvider trace.TracerProvider
	metrics        Metrics
	config         Config
	mu             sync.RWMutex
}

// NewManager builds an uninitialised manager; Initialize starts exporters.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// Initialize starts the configured exporters and installs the global tracer
// and metrics.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := InitGlobalTracer(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	metrics, err := InitMetrics(ctx, m.config.Metrics)
	if err != nil {
		return err
	}
	m.metrics = metrics
	SetGlobalMetrics(m.metrics)

	return nil
}

// GetTracer returns a named tracer from the manager's provider.
func (m *Manager) GetTracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracerProvider.Tracer(name)
}

// GetMetrics returns the active metrics sink.
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// Shutdown flushes and stops the exporters.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sd, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		return sd.Shutdown(ctx)
	}
	return nil
}
