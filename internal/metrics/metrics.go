// Package metrics exposes scheduler, notifier and HTTP counters in the
// Prometheus text format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"cronbot/internal/eventbus"
	"cronbot/internal/notifier"
	"cronbot/internal/task/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cronbot"

// Source is the scheduler view sampled on every scrape.
type Source interface {
	Snapshot() scheduler.Snapshot
}

// EventTypes are the bus events Consume understands.
var EventTypes = []string{
	scheduler.EventJobExecuted,
	scheduler.EventJobFailed,
	scheduler.EventJobRemoved,
	notifier.EventSent,
	notifier.EventFailed,
	notifier.EventDropped,
	notifier.EventDeduped,
}

type Metrics struct {
	reg *prometheus.Registry

	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsRemoved   prometheus.Counter
	notifications *prometheus.CounterVec

	httpTotal    *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers every collector on a private registry. src may be nil.
func New(src Source) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Job executions by status (ok, error).",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_run_duration_seconds",
			Help:      "Job execution time by status.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"status"}),
		jobsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_removed_after_run_total",
			Help:      "One-shot jobs removed after running.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifier outcomes (sent, failed, dropped, deduped).",
		}, []string{"result"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobRuns, m.jobDuration, m.jobsRemoved, m.notifications,
		m.httpTotal, m.httpDuration,
	)
	if src != nil {
		m.reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs",
				Help:      "Jobs in the collection.",
			}, func() float64 { return float64(src.Snapshot().Jobs) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_enabled",
				Help:      "Enabled jobs.",
			}, func() float64 { return float64(src.Snapshot().EnabledJobs) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "next_wake_timestamp_seconds",
				Help:      "Unix time the scheduler timer fires next; 0 when idle.",
			}, func() float64 {
				next := src.Snapshot().NextWake
				if next.IsZero() {
					return 0
				}
				return float64(next.UnixMilli()) / 1000
			}),
		)
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Observe updates counters from one bus event. Unknown events are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case scheduler.EventJobExecuted, scheduler.EventJobFailed:
		ev, ok := e.Data.(scheduler.RunEvent)
		if !ok {
			return
		}
		status := string(ev.Status)
		m.jobRuns.WithLabelValues(status).Inc()
		m.jobDuration.WithLabelValues(status).Observe(ev.Duration.Seconds())
	case scheduler.EventJobRemoved:
		if ev, ok := e.Data.(scheduler.RunEvent); ok && ev.Removed {
			m.jobsRemoved.Inc()
		}
	case notifier.EventSent:
		m.notifications.WithLabelValues("sent").Inc()
	case notifier.EventFailed:
		m.notifications.WithLabelValues("failed").Inc()
	case notifier.EventDropped:
		m.notifications.WithLabelValues("dropped").Inc()
	case notifier.EventDeduped:
		m.notifications.WithLabelValues("deduped").Inc()
	}
}

// Consume applies events until ctx is done or the channel closes.
func (m *Metrics) Consume(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.Observe(e)
		}
	}
}

// Middleware records request count and latency labelled by chi route
// pattern, so job ids do not become label values.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		if route == "/metrics" {
			return
		}
		m.httpTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
