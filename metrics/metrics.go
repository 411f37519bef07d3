// Package metrics exposes Prometheus instrumentation for secret resolution and
// the server that publishes it.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decryption outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ResolverMetrics holds the resolver collectors. A nil *ResolverMetrics is
// valid and records nothing.
type ResolverMetrics struct {
	registry *prometheus.Registry

	DecryptRequests *prometheus.CounterVec
	ParseErrors     *prometheus.CounterVec
	ScopeDuration   prometheus.Histogram
}

// NewResolverMetrics registers the resolver collectors on a fresh registry.
func NewResolverMetrics(namespace string) *ResolverMetrics {
	m := &ResolverMetrics{
		registry: prometheus.NewRegistry(),
		DecryptRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decrypt_requests_total",
				Help:      "Decryption requests issued to the oracle",
			},
			[]string{"region", "outcome"},
		),
		ParseErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_errors_total",
				Help:      "Cipher-shaped values that failed to parse",
			},
			[]string{"error"},
		),
		ScopeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scope_resolve_duration_seconds",
				Help:      "Time to resolve a single environment scope",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	m.registry.MustRegister(m.DecryptRequests, m.ParseErrors, m.ScopeDuration)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *ResolverMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *ResolverMetrics) ObserveDecrypt(region string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.DecryptRequests.WithLabelValues(region, outcome).Inc()
}

func (m *ResolverMetrics) ObserveParseError(kind string) {
	if m == nil {
		return
	}
	m.ParseErrors.WithLabelValues(kind).Inc()
}

func (m *ResolverMetrics) ObserveScope(start time.Time) {
	if m == nil {
		return
	}
	m.ScopeDuration.Observe(time.Since(start).Seconds())
}

// MetricsServer serves the /metrics endpoint on its own listener.
type MetricsServer struct {
	srv *http.Server
}

func New(m *ResolverMetrics, listenAddr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
