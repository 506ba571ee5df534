package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig controls the Prometheus metric pipeline. The registry is
// exposed on the main HTTP server's /metrics route.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled,omitempty"`
}

// Metrics is the sink every component reports into. Implementations must
// tolerate a zero value: recording on an uninitialised sink is a no-op.
type Metrics interface {
	RecordRequest(ctx context.Context, duration time.Duration, errKind string)
	RecordUpstreamCall(ctx context.Context, provider, kind string, duration time.Duration, err error)
	RecordReasonerCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordRateLimitWait(ctx context.Context, provider string, wait time.Duration)
	AddActiveSessions(ctx context.Context, delta int)
}

// InitMetrics builds the meter and instruments. When disabled it returns a
// zero-valued sink whose records all short-circuit.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("periplo")

	m := &PrometheusMetrics{}

	if m.requestDuration, err = meter.Float64Histogram(
		"periplo_request_duration_seconds",
		metric.WithDescription("End-to-end handle() duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	if m.requestsTotal, err = meter.Int64Counter(
		"periplo_requests_total",
		metric.WithDescription("Total handled requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}
	if m.requestErrors, err = meter.Int64Counter(
		"periplo_request_errors_total",
		metric.WithDescription("Requests aborted by error kind"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request errors counter: %w", err)
	}
	if m.upstreamDuration, err = meter.Float64Histogram(
		"periplo_upstream_request_duration_seconds",
		metric.WithDescription("Upstream call duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create upstream duration histogram: %w", err)
	}
	if m.upstreamTotal, err = meter.Int64Counter(
		"periplo_upstream_requests_total",
		metric.WithDescription("Total upstream calls by provider and outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create upstream counter: %w", err)
	}
	if m.reasonerDuration, err = meter.Float64Histogram(
		"periplo_reasoner_request_duration_seconds",
		metric.WithDescription("Reasoner completion duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create reasoner duration histogram: %w", err)
	}
	if m.reasonerTokens, err = meter.Int64Counter(
		"periplo_reasoner_tokens_total",
		metric.WithDescription("Reasoner tokens by model and direction"),
	); err != nil {
		return nil, fmt.Errorf("failed to create reasoner tokens counter: %w", err)
	}
	if m.ratelimitWait, err = meter.Float64Histogram(
		"periplo_ratelimit_wait_seconds",
		metric.WithDescription("Time spent waiting on provider token buckets"),
	); err != nil {
		return nil, fmt.Errorf("failed to create ratelimit wait histogram: %w", err)
	}
	if m.sessionsActive, err = meter.Int64UpDownCounter(
		"periplo_sessions_active",
		metric.WithDescription("Sessions currently held in memory"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sessions gauge: %w", err)
	}

	return m, nil
}

// PrometheusMetrics implements Metrics over otel instruments. The zero
// value is a valid noop sink.
type PrometheusMetrics struct {
	requestDuration  metric.Float64Histogram
	requestsTotal    metric.Int64Counter
	requestErrors    metric.Int64Counter
	upstreamDuration metric.Float64Histogram
	upstreamTotal    metric.Int64Counter
	reasonerDuration metric.Float64Histogram
	reasonerTokens   metric.Int64Counter
	ratelimitWait    metric.Float64Histogram
	sessionsActive   metric.Int64UpDownCounter
}

func (m *PrometheusMetrics) RecordRequest(ctx context.Context, duration time.Duration, errKind string) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.Record(ctx, duration.Seconds())
	m.requestsTotal.Add(ctx, 1)
	if errKind != "" {
		m.requestErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", errKind)))
	}
}

func (m *PrometheusMetrics) RecordUpstreamCall(ctx context.Context, provider, kind string, duration time.Duration, err error) {
	if m == nil || m.upstreamDuration == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	}
	m.upstreamDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	status := "ok"
	if err != nil {
		status = "error"
	}
	m.upstreamTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

func (m *PrometheusMetrics) RecordReasonerCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.reasonerDuration == nil {
		return
	}
	modelAttr := metric.WithAttributes(attribute.String("model", model))
	m.reasonerDuration.Record(ctx, duration.Seconds(), modelAttr)
	if inputTokens > 0 {
		m.reasonerTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("direction", "input"),
		))
	}
	if outputTokens > 0 {
		m.reasonerTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("direction", "output"),
		))
	}
}

func (m *PrometheusMetrics) RecordRateLimitWait(ctx context.Context, provider string, wait time.Duration) {
	if m == nil || m.ratelimitWait == nil {
		return
	}
	m.ratelimitWait.Record(ctx, wait.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
}

func (m *PrometheusMetrics) AddActiveSessions(ctx context.Context, delta int) {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, int64(delta))
}

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// SetGlobalMetrics installs the process-wide sink.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide sink, possibly nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}

// Package-level recorders for call sites without a Manager handle. All are
// safe before initialisation.

// RecordRateLimitWait reports time spent blocked on a provider bucket.
func RecordRateLimitWait(provider string, wait time.Duration) {
	if m := GetGlobalMetrics(); m != nil {
		m.RecordRateLimitWait(context.Background(), provider, wait)
	}
}

// RecordUpstreamCall reports one upstream call outcome.
func RecordUpstreamCall(ctx context.Context, provider, kind string, duration time.Duration, err error) {
	if m := GetGlobalMetrics(); m != nil {
		m.RecordUpstreamCall(ctx, provider, kind, duration, err)
	}
}

// RecordReasonerCall reports one LLM completion outcome.
func RecordReasonerCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m := GetGlobalMetrics(); m != nil {
		m.RecordReasonerCall(ctx, model, duration, inputTokens, outputTokens, err)
	}
}

// RecordRequest reports one handled request.
func RecordRequest(ctx context.Context, duration time.Duration, errKind string) {
	if m := GetGlobalMetrics(); m != nil {
		m.RecordRequest(ctx, duration, errKind)
	}
}

// AddActiveSessions adjusts the in-memory session gauge.
func AddActiveSessions(ctx context.Context, delta int) {
	if m := GetGlobalMetrics(); m != nil {
		m.AddActiveSessions(ctx, delta)
	}
}
