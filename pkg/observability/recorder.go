package observability

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	globalMetrics Recorder = NoopRecorder{}
	metricsMu     sync.RWMutex
)

// Recorder is the recording surface handed to request-path code. All
// implementations must tolerate concurrent use.
type Recorder interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, reqSize, respSize int64)
	RecordRateLimitDecision(ctx context.Context, policy string, admitted bool)
	RecordAuthFailure(ctx context.Context, reason string)
}

// Metrics records onto OpenTelemetry instruments exported to Prometheus.
// The zero value is inert: every record method is a no-op.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	httpDuration       metric.Float64Histogram
	httpRequests       metric.Int64Counter
	ratelimitDecisions metric.Int64Counter
	authFailures       metric.Int64Counter
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, reqSize, respSize int64) {
	if m == nil || m.httpDuration == nil || m.httpRequests == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	}

	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDecision records one gate evaluation.
func (m *Metrics) RecordRateLimitDecision(ctx context.Context, policy string, admitted bool) {
	if m == nil || m.ratelimitDecisions == nil {
		return
	}

	outcome := "admitted"
	if !admitted {
		outcome = "rejected"
	}

	m.ratelimitDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPolicy, policy),
		attribute.String(AttrOutcome, outcome),
	))
}

// RecordAuthFailure records one failed authentication attempt.
func (m *Metrics) RecordAuthFailure(ctx context.Context, reason string) {
	if m == nil || m.authFailures == nil {
		return
	}

	m.authFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrReason, reason),
	))
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// NoopRecorder discards every recording.
type NoopRecorder struct{}

func (NoopRecorder) RecordHTTPRequest(context.Context, string, string, int, time.Duration, int64, int64) {
}
func (NoopRecorder) RecordRateLimitDecision(context.Context, string, bool) {}
func (NoopRecorder) RecordAuthFailure(context.Context, string)            {}

var (
	_ Recorder = (*Metrics)(nil)
	_ Recorder = NoopRecorder{}
)

// SetGlobalMetrics installs the process-wide recorder. Passing nil resets
// it to a no-op.
func SetGlobalMetrics(r Recorder) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if r == nil {
		globalMetrics = NoopRecorder{}
		return
	}
	globalMetrics = r
}

// GetGlobalMetrics returns the process-wide recorder; never nil.
func GetGlobalMetrics() Recorder {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
