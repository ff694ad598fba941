// Package dispatcher drains the ledger event log into external sinks with
// at-least-once delivery.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"coldchain/internal/events"
	"coldchain/internal/events/metrics"
)

// Log is the replayable event log.
type Log interface {
	ListAfter(ctx context.Context, after uint64, limit int) ([]events.Event, error)
	LastSeq(ctx context.Context) (uint64, error)
}

// Sink receives events in Seq order. Deliver may be called again for an
// event it already accepted.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e events.Event) error
}

// Cursor persists the Seq of the last event every sink accepted.
type Cursor interface {
	Load(ctx context.Context) (uint64, error)
	Store(ctx context.Context, seq uint64) error
}

const (
	defaultInterval  = time.Second
	defaultBatchSize = 256
)

type Dispatcher struct {
	log       Log
	cursor    Cursor
	sinks     []Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	wake      chan struct{}
}

type Option func(*Dispatcher)

func WithInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func New(log Log, cursor Cursor, sinks []Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:       log,
		cursor:    cursor,
		sinks:     sinks,
		logger:    slog.New(slog.DiscardHandler),
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify schedules an immediate pass. It never blocks.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run delivers until ctx is cancelled. Failures are logged and retried on the
// next tick from the last persisted cursor.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.InfoContext(ctx, "dispatcher started",
		"sinks", len(d.sinks),
		"interval", d.interval,
	)
	for {
		for {
			n, err := d.ProcessBatch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.logger.WarnContext(ctx, "dispatch batch failed", "error", err)
				break
			}
			if n < d.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "dispatcher stopped")
			return nil
		case <-d.wake:
		case <-ticker.C:
		}
	}
}

// ProcessBatch delivers up to one batch after the stored cursor and returns
// how many events were fully delivered. The cursor moves past an event only
// once every sink accepted it, so a failure stops the batch there.
func (d *Dispatcher) ProcessBatch(ctx context.Context) (int, error) {
	after, err := d.cursor.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	batch, err := d.log.ListAfter(ctx, after, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list events after %d: %w", after, err)
	}

	delivered := 0
	for _, e := range batch {
		for _, s := range d.sinks {
			if err := s.Deliver(ctx, e); err != nil {
				d.observeLag(ctx, after)
				return delivered, fmt.Errorf("deliver event %d to %s: %w", e.Seq, s.Name(), err)
			}
		}
		if err := d.cursor.Store(ctx, e.Seq); err != nil {
			return delivered, fmt.Errorf("store cursor %d: %w", e.Seq, err)
		}
		after = e.Seq
		delivered++
	}
	if delivered > 0 {
		d.logger.DebugContext(ctx, "dispatched events", "count", delivered, "cursor", after)
	}
	d.observeLag(ctx, after)
	return delivered, nil
}

func (d *Dispatcher) observeLag(ctx context.Context, cursor uint64) {
	if d.metrics == nil {
		return
	}
	head, err := d.log.LastSeq(ctx)
	if err != nil {
		return
	}
	d.metrics.ObserveCursor(cursor, head)
}
