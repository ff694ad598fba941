// Package sink delivers ledger events to systems outside the process.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"

	"coldchain/internal/events"
	"coldchain/internal/events/metrics"
	"coldchain/pkg/platform/circuit"
	"coldchain/pkg/platform/sentinel"
)

const (
	headerKind = "kind"
	headerSeq  = "seq"
)

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Kafka publishes each event keyed by shipment ID so one shipment's events
// stay ordered within a partition.
type Kafka struct {
	producer producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewKafka(p producer, topic string, breaker *circuit.Breaker, logger *slog.Logger, m *metrics.Metrics) *Kafka {
	return &Kafka{
		producer: p,
		topic:    topic,
		breaker:  breaker,
		logger:   logger,
		metrics:  m,
	}
}

func (k *Kafka) Name() string { return "kafka" }

// Deliver fails fast with sentinel.ErrUnavailable while the breaker is open.
func (k *Kafka) Deliver(ctx context.Context, e events.Event) error {
	if !k.breaker.Allow() {
		k.metrics.ObserveDelivery(k.Name(), "rejected")
		return fmt.Errorf("kafka sink: circuit open: %w", sentinel.ErrUnavailable)
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafka sink: encode event %d: %w", e.Seq, err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(e.ShipmentID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: headerKind, Value: []byte(e.Kind)},
			{Key: headerSeq, Value: []byte(strconv.FormatUint(e.Seq, 10))},
		},
	}

	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		_, change := k.breaker.RecordFailure()
		if change.Opened {
			k.metrics.SetBreakerOpen(k.Name(), true)
			k.logger.ErrorContext(ctx, "kafka sink circuit opened", "error", err)
		}
		k.metrics.ObserveDelivery(k.Name(), "error")
		return fmt.Errorf("kafka sink: produce event %d: %w", e.Seq, err)
	}

	if _, change := k.breaker.RecordSuccess(); change.Closed {
		k.metrics.SetBreakerOpen(k.Name(), false)
		k.logger.InfoContext(ctx, "kafka sink circuit closed")
	}
	k.metrics.ObserveDelivery(k.Name(), "ok")
	return nil
}
