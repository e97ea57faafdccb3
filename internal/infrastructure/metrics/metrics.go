// Package metrics exposes Prometheus collectors for matchmaking runs, the
// event bus, scheduled jobs and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studyhub/groupmatch/internal/application/matchmaking"
	"github.com/studyhub/groupmatch/internal/domain/matching"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/internal/infrastructure/scheduler"
)

const namespace = "groupmatch"

// Metrics owns a private registry so tests can create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	courseOutcomes  *prometheus.CounterVec
	courseDuration  *prometheus.HistogramVec
	searchEvaluated prometheus.Histogram
	searchTruncated prometheus.Counter
	runDuration     prometheus.Histogram
	groupsFormed    prometheus.Counter

	events          *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		courseOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "matchmaking", Name: "course_batches_total",
			Help: "Course batches by outcome.",
		}, []string{"outcome"}),
		courseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "matchmaking", Name: "course_batch_duration_seconds",
			Help:    "Duration of one course batch.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"outcome"}),
		searchEvaluated: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "matchmaking", Name: "subsets_evaluated",
			Help:    "Compatible subsets scored per search.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		searchTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "matchmaking", Name: "searches_truncated_total",
			Help: "Searches stopped early by the subset cap.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "matchmaking", Name: "run_duration_seconds",
			Help:    "Duration of a full pass over all courses.",
			Buckets: prometheus.DefBuckets,
		}),
		groupsFormed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "matchmaking", Name: "groups_formed_total",
			Help: "Groups created or grown by matchmaking.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "published_total",
			Help: "Lifecycle events published.",
		}, []string{"type"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "handler_failures_total",
			Help: "Event handler errors and panics.",
		}, []string{"type"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "job_runs_total",
			Help: "Scheduled job executions.",
		}, []string{"job", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "job_duration_seconds",
			Help:    "Scheduled job duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.courseOutcomes, m.courseDuration, m.searchEvaluated, m.searchTruncated,
		m.runDuration, m.groupsFormed,
		m.events, m.handlerFailures,
		m.jobRuns, m.jobDuration,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCHMAKING
// ══════════════════════════════════════════════════════════════════════════════

// ObserveCourse implements matchmaking.Recorder.
func (m *Metrics) ObserveCourse(o matchmaking.Outcome, d time.Duration) {
	m.courseOutcomes.WithLabelValues(string(o)).Inc()
	m.courseDuration.WithLabelValues(string(o)).Observe(d.Seconds())
}

// ObserveSearch implements matchmaking.Recorder.
func (m *Metrics) ObserveSearch(r matching.Result) {
	m.searchEvaluated.Observe(float64(r.Evaluated))
	if r.Truncated {
		m.searchTruncated.Inc()
	}
}

// ObserveRun implements matchmaking.Recorder.
func (m *Metrics) ObserveRun(r matchmaking.RunReport) {
	m.runDuration.Observe(r.Duration.Seconds())
	m.groupsFormed.Add(float64(r.GroupsFormed))
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS & JOBS
// ══════════════════════════════════════════════════════════════════════════════

// ObserveEvent implements messaging.Observer.
func (m *Metrics) ObserveEvent(t shared.EventType) {
	m.events.WithLabelValues(string(t)).Inc()
}

// ObserveHandler implements messaging.Observer.
func (m *Metrics) ObserveHandler(t shared.EventType, _ time.Duration, err error) {
	if err != nil {
		m.handlerFailures.WithLabelValues(string(t)).Inc()
	}
}

// ObserveJob is a scheduler.OnJobComplete hook.
func (m *Metrics) ObserveJob(r scheduler.JobResult) {
	status := "success"
	if !r.Success {
		status = "failure"
	}
	m.jobRuns.WithLabelValues(r.JobName, status).Inc()
	m.jobDuration.WithLabelValues(r.JobName).Observe(r.Duration.Seconds())
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP
// ══════════════════════════════════════════════════════════════════════════════

// Middleware records request counts and latency labelled by chi route pattern,
// so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

var _ matchmaking.Recorder = (*Metrics)(nil)
