// Package metrics exposes Prometheus metrics for upstream calls, retrievals and sessions.
//
// A *Metrics value satisfies the observer interfaces of the sefaz, portal, retrieval and session packages.
package metrics

import (
	"net/http"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nfce"

type Metrics struct {
	registry *prometheus.Registry

	upstreamDuration *prometheus.HistogramVec
	retrievals       *prometheus.CounterVec
	sessions         *prometheus.CounterVec
}

// New creates the metrics on a dedicated registry, together with the Go runtime and process collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()

	upstreamDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of requests to the authority SOAP service and the portal",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"upstream", "result"},
	)

	retrievals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Document retrievals by method and outcome (the outcome is the error code for failures)",
		},
		[]string{"method", "outcome"},
	)

	sessions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished download sessions by source and status",
		},
		[]string{"source", "status"},
	)

	registry.MustRegister(
		upstreamDuration,
		retrievals,
		sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:         registry,
		upstreamDuration: upstreamDuration,
		retrievals:       retrievals,
		sessions:         sessions,
	}
}

func (m *Metrics) ObserveUpstream(upstream, result string, elapsed time.Duration) {
	m.upstreamDuration.WithLabelValues(upstream, result).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRetrieval(method nfce.Method, success bool, code nfce.ErrorCode) {
	outcome := "success"
	if !success {
		outcome = string(code)
	}
	if method == "" {
		method = "none"
	}
	m.retrievals.WithLabelValues(string(method), outcome).Inc()
}

func (m *Metrics) ObserveSession(source nfce.SessionSource, status nfce.SessionStatus) {
	m.sessions.WithLabelValues(string(source), string(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
