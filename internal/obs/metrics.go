// Package obs holds the console's Prometheus metrics.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. Each instance owns its registry so tests
// can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	apiCallsTotal     *prometheus.CounterVec
	apiCallDuration   *prometheus.HistogramVec
	predictionLatency prometheus.Histogram
	predictionsTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fraudguard",
			Name:      "http_in_flight_requests",
			Help:      "In-flight console HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "http_requests_total",
			Help:      "Total console HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fraudguard",
			Name:      "http_request_duration_seconds",
			Help:      "Console HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		apiCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "api_calls_total",
			Help:      "Outbound fraud API calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		apiCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fraudguard",
			Name:      "api_call_duration_seconds",
			Help:      "Outbound fraud API call latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		predictionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fraudguard",
			Name:      "prediction_latency_ms",
			Help:      "Client-measured prediction round trip in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		predictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "predictions_total",
			Help:      "Resolved predictions by verdict.",
		}, []string{"verdict"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.apiCallsTotal,
		m.apiCallDuration,
		m.predictionLatency,
		m.predictionsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAPICall records one outbound API call.
func (m *Metrics) ObserveAPICall(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.apiCallsTotal.WithLabelValues(operation, outcome).Inc()
	m.apiCallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObservePrediction records a resolved prediction.
func (m *Metrics) ObservePrediction(isFraud bool, latency time.Duration) {
	if m == nil {
		return
	}
	verdict := "legit"
	if isFraud {
		verdict = "fraud"
	}
	m.predictionsTotal.WithLabelValues(verdict).Inc()
	m.predictionLatency.Observe(float64(latency.Milliseconds()))
}

// Instrument measures console requests. The route label is the chi
// route pattern, so path parameters do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(sw.code)

		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
