package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "connector"

// Metrics holds the connector counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	eventsSubmitted     prometheus.Counter
	eventsDropped       prometheus.Counter
	eventsPublished     prometheus.Counter
	heartbeatsPublished prometheus.Counter
	deliveriesConsumed  prometheus.Counter
	errors              *prometheus.CounterVec
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		eventsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "producer",
			Name:      "events_submitted_total",
			Help:      "Total events accepted into the pending queue",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "producer",
			Name:      "events_dropped_total",
			Help:      "Total events discarded without being published",
		}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "producer",
			Name:      "events_published_total",
			Help:      "Total events published on the event channel",
		}),
		heartbeatsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "producer",
			Name:      "heartbeats_published_total",
			Help:      "Total heartbeats published on the heartbeat channel",
		}),
		deliveriesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "consumer",
			Name:      "deliveries_total",
			Help:      "Total deliveries handed to the attached handler",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
	}

	collectors := []prometheus.Collector{
		m.eventsSubmitted,
		m.eventsDropped,
		m.eventsPublished,
		m.heartbeatsPublished,
		m.deliveriesConsumed,
		m.errors,
	}
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return m, nil
}

func (m *Metrics) IncEventsSubmitted() {
	if m == nil {
		return
	}
	m.eventsSubmitted.Inc()
}

func (m *Metrics) IncEventsDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) AddEventsDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsDropped.Add(float64(n))
}

func (m *Metrics) IncEventsPublished() {
	if m == nil {
		return
	}
	m.eventsPublished.Inc()
}

func (m *Metrics) IncHeartbeatsPublished() {
	if m == nil {
		return
	}
	m.heartbeatsPublished.Inc()
}

func (m *Metrics) IncDeliveriesConsumed() {
	if m == nil {
		return
	}
	m.deliveriesConsumed.Inc()
}

// IncError increments the error counter for the given type (publish, heartbeat, handler, serialize).
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}
