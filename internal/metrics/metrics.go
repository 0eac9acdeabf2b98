package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the scheduling core. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	lockWait     *prometheus.HistogramVec
	lockOutcomes *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	slotQueries  *prometheus.HistogramVec
	eventsFailed *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appointly",
			Subsystem: "guard",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for professional timeline locks.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 3, 5},
		}, []string{"backend"}),
		lockOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointly",
			Subsystem: "guard",
			Name:      "lock_acquisitions_total",
			Help:      "Lock acquisition attempts by outcome.",
		}, []string{"backend", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointly",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Committed appointment transitions by kind.",
		}, []string{"kind"}),
		slotQueries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appointly",
			Subsystem: "availability",
			Name:      "query_seconds",
			Help:      "Latency of availability queries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		eventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointly",
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Events a sink failed to accept.",
		}, []string{"sink"}),
	}
	if reg != nil {
		reg.MustRegister(m.lockWait, m.lockOutcomes, m.transitions, m.slotQueries, m.eventsFailed)
	}
	return m
}

func (m *Metrics) ObserveLock(backend, outcome string, waited time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(backend).Observe(waited.Seconds())
	m.lockOutcomes.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) Transition(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveQuery(kind string, took time.Duration) {
	if m == nil {
		return
	}
	m.slotQueries.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) PublishFailed(sink string) {
	if m == nil {
		return
	}
	m.eventsFailed.WithLabelValues(sink).Inc()
}
