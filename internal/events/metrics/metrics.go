package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers subscriptions and outbound delivery of ledger events.
type Metrics struct {
	Subscribers prometheus.Gauge

	// Deliveries by sink and outcome: "ok", "error" or "rejected" (breaker open)
	Deliveries *prometheus.CounterVec

	// Sequence number the dispatcher has delivered through
	DispatchCursor prometheus.Gauge
	// Events appended but not yet delivered to every sink
	DispatchLag prometheus.Gauge

	// 1 while a sink's breaker is open
	BreakerOpen *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "coldchain_event_subscribers",
			Help: "Active event subscriptions",
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coldchain_event_deliveries_total",
			Help: "Event deliveries to external sinks by outcome",
		}, []string{"sink", "outcome"}),
		DispatchCursor: f.NewGauge(prometheus.GaugeOpts{
			Name: "coldchain_dispatch_cursor",
			Help: "Last event sequence delivered to every sink",
		}),
		DispatchLag: f.NewGauge(prometheus.GaugeOpts{
			Name: "coldchain_dispatch_lag_events",
			Help: "Events recorded but not yet delivered to every sink",
		}),
		BreakerOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coldchain_sink_breaker_open",
			Help: "Circuit breaker state per sink (1 = open)",
		}, []string{"sink"}),
	}
}

func (m *Metrics) SubscriberAdded() {
	if m != nil {
		m.Subscribers.Inc()
	}
}

func (m *Metrics) SubscriberRemoved() {
	if m != nil {
		m.Subscribers.Dec()
	}
}

func (m *Metrics) ObserveDelivery(sink, outcome string) {
	if m != nil {
		m.Deliveries.WithLabelValues(sink, outcome).Inc()
	}
}

// ObserveCursor records the dispatcher position against the head of the log.
func (m *Metrics) ObserveCursor(cursor, head uint64) {
	if m == nil {
		return
	}
	m.DispatchCursor.Set(float64(cursor))
	lag := 0.0
	if head > cursor {
		lag = float64(head - cursor)
	}
	m.DispatchLag.Set(lag)
}

func (m *Metrics) SetBreakerOpen(sink string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerOpen.WithLabelValues(sink).Set(v)
}
