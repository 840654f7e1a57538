// Package metrics exposes orchestration metrics for Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FairForge/globalfailover/internal/failover"
)

const namespace = "failover"

// Metrics holds all Prometheus metrics on a private registry
type Metrics struct {
	Outcomes        *prometheus.CounterVec
	Convergence     *prometheus.HistogramVec
	Polls           prometheus.Counter
	TransientErrors prometheus.Counter
	InFlight        prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
	HTTPLatency     *prometheus.HistogramVec
	registry        *prometheus.Registry
}

var _ failover.Observer = (*Metrics)(nil)

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_total",
				Help:      "Cluster sequences finished, by kind and result",
			},
			[]string{"kind", "result"},
		),
		Convergence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "convergence_seconds",
				Help:      "Time from sequence start to a successful terminal status",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"kind"},
		),
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Status polls issued by finished sequences",
		}),
		TransientErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transient_errors_total",
			Help:      "Transport failures absorbed or surfaced while polling",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight",
			Help:      "Accepted failover commands still converging",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.Outcomes,
		m.Convergence,
		m.Polls,
		m.TransientErrors,
		m.InFlight,
		m.HTTPRequests,
		m.HTTPLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe updates orchestration metrics from a sequence event
func (m *Metrics) Observe(_ context.Context, e failover.Event) {
	if e.Phase == failover.PhaseInitiated {
		m.InFlight.Inc()
		return
	}
	out := e.Outcome
	if out == nil {
		return
	}
	if out.CommandIssued {
		m.InFlight.Dec()
	}
	m.Outcomes.WithLabelValues(string(e.Kind), string(out.Result)).Inc()
	m.Polls.Add(float64(out.Polls))
	m.TransientErrors.Add(float64(out.TransientErrors))
	if out.Succeeded() {
		m.Convergence.WithLabelValues(string(e.Kind)).Observe(out.Duration.Seconds())
	}
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, path).Observe(d.Seconds())
}
