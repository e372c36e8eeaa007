package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics builds the meter provider with a Prometheus exporter on a
// dedicated registry and creates the Perch instruments. Returns an inert
// Metrics when collection is disabled; its record methods are no-ops and
// its handler answers 503.
//
// The registry is private to the returned Metrics so tests and repeated
// initializations never trip duplicate-registration errors on the global
// default registry.
func InitMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{}, nil
	}

	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	meter := provider.Meter(DefaultServiceName)
	ns := cfg.Namespace

	httpDuration, err := meter.Float64Histogram(
		ns+"_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	httpRequests, err := meter.Int64Counter(
		ns+"_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	ratelimitDecisions, err := meter.Int64Counter(
		ns+"_ratelimit_decisions_total",
		metric.WithDescription("Total rate limit decisions by policy and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit decisions counter: %w", err)
	}

	authFailures, err := meter.Int64Counter(
		ns+"_auth_failures_total",
		metric.WithDescription("Total authentication failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth failures counter: %w", err)
	}

	return &Metrics{
		provider:           provider,
		registry:           registry,
		httpDuration:       httpDuration,
		httpRequests:       httpRequests,
		ratelimitDecisions: ratelimitDecisions,
		authFailures:       authFailures,
	}, nil
}

// Handler serves the metrics endpoint for this instance's registry. When
// collection is disabled it answers 503.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
