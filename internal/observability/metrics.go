package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/locadora/console/internal/jobs"
)

// Transition outcomes recorded by RecordTransition.
const (
	OutcomeSuccess    = "success"
	OutcomeRejected   = "rejected"
	OutcomeBackendErr = "backend_error"
	OutcomeConflict   = "conflict"
)

// Metrics collects the Prometheus metrics of the console.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	workingSet      prometheus.Gauge
	skippedRecords  *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "locadora_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "locadora_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "locadora_rental_transitions_total",
		Help: "Rental lifecycle transitions by kind and outcome.",
	}, []string{"kind", "outcome"})
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "locadora_working_set_refreshes_total",
		Help: "Full reloads of the rental working set from the backend.",
	}, []string{"outcome"})
	workingSet := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "locadora_working_set_rentals",
		Help: "Rentals currently held in the working set.",
	})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "locadora_backend_records_skipped_total",
		Help: "Backend records dropped from listings because they could not be mapped.",
	}, []string{"source"})
	registry.MustRegister(requests, duration, transitions, refreshes, workingSet, skipped)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		transitions:     transitions,
		refreshes:       refreshes,
		workingSet:      workingSet,
		skippedRecords:  skipped,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// RecordTransition counts one lifecycle transition attempt.
func (m *Metrics) RecordTransition(kind, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, outcome).Inc()
}

// RecordRefresh counts one working set reload and its resulting size.
func (m *Metrics) RecordRefresh(size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.refreshes.WithLabelValues("failure").Inc()
		return
	}
	m.refreshes.WithLabelValues("success").Inc()
	m.workingSet.Set(float64(size))
}

// RecordSkippedRecord counts one backend record left out of a listing.
func (m *Metrics) RecordSkippedRecord(source string) {
	if m == nil {
		return
	}
	m.skippedRecords.WithLabelValues(source).Inc()
}

// Jobs returns the background job collectors registered on this registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
