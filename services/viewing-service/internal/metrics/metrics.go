// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	bookings    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	reschedules *prometheus.CounterVec
	lockWait    prometheus.Histogram
	published   *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the Go and process
// collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "viewings_booking_requests_total",
			Help: "Booking attempts by result kind.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "viewings_transitions_total",
			Help: "Lifecycle transition attempts by edge and result kind.",
		}, []string{"from", "to", "result"}),
		reschedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "viewings_reschedules_total",
			Help: "Reschedule attempts by result kind.",
		}, []string{"result"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "viewings_agent_lock_wait_seconds",
			Help:    "Time spent waiting for the per-agent write lock.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "viewings_events_published_total",
			Help: "Outbox events delivered to the broker.",
		}, []string{"transport"}),
	}
	registry.MustRegister(
		m.bookings, m.transitions, m.reschedules, m.lockWait, m.published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Result is the label value for err: "ok" or its error kind.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return string(model.Kind(err))
}

func (m *Metrics) ObserveBooking(err error) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(Result(err)).Inc()
}

func (m *Metrics) ObserveTransition(from, to model.Status, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(statusLabel(from), statusLabel(to), Result(err)).Inc()
}

// statusLabel keeps the transitions series bounded to known statuses.
func statusLabel(s model.Status) string {
	switch {
	case s.Valid():
		return string(s)
	case s == "":
		return "unknown"
	default:
		return "invalid"
	}
}

func (m *Metrics) ObserveReschedule(err error) {
	if m == nil {
		return
	}
	m.reschedules.WithLabelValues(Result(err)).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) EventPublished(transport string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(transport).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
