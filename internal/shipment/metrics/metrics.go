package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger engine.
type Metrics struct {
	// Operation outcomes: "ok" or the error code
	Operations *prometheus.CounterVec

	OperationLatency *prometheus.HistogramVec

	ReadingsIngested prometheus.Counter
	FaultsDetected   prometheus.Counter
}

// New creates the ledger metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coldchain_ledger_operations_total",
			Help: "Ledger operations by name and outcome",
		}, []string{"operation", "outcome"}),

		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coldchain_ledger_operation_duration_seconds",
			Help:    "Ledger mutation latency including the commit",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"operation"}),

		ReadingsIngested: f.NewCounter(prometheus.CounterOpts{
			Name: "coldchain_readings_ingested_total",
			Help: "Temperature readings appended to any shipment log",
		}),

		FaultsDetected: f.NewCounter(prometheus.CounterOpts{
			Name: "coldchain_faults_detected_total",
			Help: "Shipments moved from Active to Compromised",
		}),
	}
}

// ObserveOperation records one mutation attempt.
func (m *Metrics) ObserveOperation(operation, outcome string, d time.Duration) {
	if m != nil {
		m.Operations.WithLabelValues(operation, outcome).Inc()
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementReadingsIngested() {
	if m != nil {
		m.ReadingsIngested.Inc()
	}
}

func (m *Metrics) IncrementFaultsDetected() {
	if m != nil {
		m.FaultsDetected.Inc()
	}
}
