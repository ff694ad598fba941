// Package notifier delivers ledger events to in-process subscribers.
//
// Every subscription tails the event log with its own cursor. Notify only
// wakes subscriptions, so a slow subscriber falls behind on its own cursor
// and never blocks the ledger or its peers. A poll interval picks up commits
// made by other processes sharing the same log.
package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"coldchain/internal/events"
	"coldchain/internal/events/metrics"
	dErrors "coldchain/pkg/domain-errors"
)

// Log is the replayable event log.
type Log interface {
	ListAfter(ctx context.Context, after uint64, limit int) ([]events.Event, error)
}

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 256
	defaultBuffer       = 64
)

// Notifier tracks live subscriptions.
type Notifier struct {
	log          Log
	logger       *slog.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration
	batchSize    int

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

type Option func(*Notifier)

func WithPollInterval(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.pollInterval = d
		}
	}
}

func WithBatchSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.batchSize = size
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

func New(log Log, opts ...Option) *Notifier {
	n := &Notifier{
		log:          log,
		logger:       slog.New(slog.DiscardHandler),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		subs:         make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify wakes every subscription. It never blocks.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs {
		sub.wakeUp()
	}
}

// Subscribers returns the number of open subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Subscribe starts a subscription that yields events matching filter in Seq
// order, beginning after filter.After. The subscription ends when ctx is done
// or Close is called; its channel is then closed. buffer <= 0 uses a default.
func (n *Notifier) Subscribe(ctx context.Context, filter events.Filter, buffer int) (*Subscription, error) {
	for _, k := range filter.Kinds {
		if !k.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown event kind: "+string(k))
		}
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		filter: filter,
		cursor: filter.After,
		out:    make(chan events.Event, buffer),
		wake:   make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()
	n.metrics.SubscriberAdded()

	go n.run(ctx, sub)
	return sub, nil
}

func (n *Notifier) run(ctx context.Context, sub *Subscription) {
	defer func() {
		n.mu.Lock()
		delete(n.subs, sub)
		n.mu.Unlock()
		n.metrics.SubscriberRemoved()
		close(sub.out)
		close(sub.done)
	}()

	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	for {
		full, err := n.drain(ctx, sub)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.logger.WarnContext(ctx, "subscription failed to read event log",
				"cursor", sub.Cursor(),
				"error", err,
			)
		}
		if full {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-sub.wake:
		case <-ticker.C:
		}
	}
}

// drain delivers one batch. full reports whether the batch was capped and more
// events may be waiting.
func (n *Notifier) drain(ctx context.Context, sub *Subscription) (full bool, err error) {
	batch, err := n.log.ListAfter(ctx, sub.Cursor(), n.batchSize)
	if err != nil {
		return false, err
	}
	for _, e := range batch {
		if sub.filter.Matches(e) {
			select {
			case sub.out <- e:
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		sub.advance(e.Seq)
	}
	return len(batch) == n.batchSize, nil
}

// Subscription is one consumer's view of the event stream.
type Subscription struct {
	filter events.Filter
	out    chan events.Event
	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	cursor uint64
}

// Events yields matching events in Seq order. It is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan events.Event { return s.out }

// Cursor is the Seq of the last event examined.
func (s *Subscription) Cursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Close ends the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) advance(seq uint64) {
	s.mu.Lock()
	s.cursor = seq
	s.mu.Unlock()
}

func (s *Subscription) wakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
