// Package metrics exposes the Prometheus collectors shared by the booking
// core. All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exambook"

type Metrics struct {
	registry *prometheus.Registry

	lockAcquire      *prometheus.CounterVec
	lockRelease      *prometheus.CounterVec
	bookingOutcomes  *prometheus.CounterVec
	bookingDuration  prometheus.Histogram
	capacityLookups  *prometheus.CounterVec
	driftSessions    prometheus.Gauge
	driftCorrections prometheus.Counter
	reconcilePasses  *prometheus.CounterVec
	reconcileSeconds prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	tasks            *prometheus.CounterVec
}

// New builds the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		lockAcquire: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "acquire_total",
			Help:      "Lock acquisition attempts by lock level and outcome.",
		}, []string{"level", "outcome"}),
		lockRelease: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "release_total",
			Help:      "Lock releases by lock level and outcome.",
		}, []string{"level", "outcome"}),
		bookingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "outcomes_total",
			Help:      "Booking requests by outcome code.",
		}, []string{"outcome"}),
		bookingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "duration_seconds",
			Help:      "Time spent in the two-phase booking protocol.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		capacityLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capacity",
			Name:      "snapshots_total",
			Help:      "Capacity snapshots by the tier that served the used count.",
		}, []string{"source"}),
		driftSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "drifted_sessions",
			Help:      "Sessions whose fast-tier counter drifted in the last pass.",
		}),
		driftCorrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "corrections_total",
			Help:      "Counter corrections applied by reconciliation.",
		}),
		reconcilePasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "passes_total",
			Help:      "Reconciliation passes by result.",
		}, []string{"result"}),
		reconcileSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "response_cache",
			Name:      "lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "total",
			Help:      "Side-effect tasks by type and stage.",
		}, []string{"type", "stage"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.lockAcquire,
		m.lockRelease,
		m.bookingOutcomes,
		m.bookingDuration,
		m.capacityLookups,
		m.driftSessions,
		m.driftCorrections,
		m.reconcilePasses,
		m.reconcileSeconds,
		m.cacheLookups,
		m.tasks,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) LockAcquire(level, outcome string) {
	if m == nil {
		return
	}
	m.lockAcquire.WithLabelValues(level, outcome).Inc()
}

func (m *Metrics) LockRelease(level, outcome string) {
	if m == nil {
		return
	}
	m.lockRelease.WithLabelValues(level, outcome).Inc()
}

func (m *Metrics) BookingOutcome(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bookingOutcomes.WithLabelValues(outcome).Inc()
	m.bookingDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) CapacitySnapshot(source string) {
	if m == nil {
		return
	}
	m.capacityLookups.WithLabelValues(source).Inc()
}

func (m *Metrics) ReconcilePass(result string, drifted int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reconcilePasses.WithLabelValues(result).Inc()
	m.reconcileSeconds.Observe(elapsed.Seconds())
	m.driftSessions.Set(float64(drifted))
	m.driftCorrections.Add(float64(drifted))
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Task counts a task lifecycle stage such as published, handled, failed or dead_lettered.
func (m *Metrics) Task(taskType, stage string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(taskType, stage).Inc()
}
