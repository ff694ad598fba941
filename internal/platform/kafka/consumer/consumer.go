// Package consumer runs a Kafka consumer group loop that hands each record to
// a Handler and commits only what the handler accepted.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is the transport-neutral view of a consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes one message. A nil return commits the record; an error
// means the record must be retried.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

type client interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

// Consumer polls records and dispatches them sequentially per poll.
type Consumer struct {
	client     client
	handler    Handler
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

type Option func(*Consumer)

// WithBackoff bounds the retry delay for records whose handler failed.
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(c *Consumer) {
		c.minBackoff = minDelay
		c.maxBackoff = maxDelay
	}
}

func New(client client, handler Handler, logger *slog.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		client:     client,
		handler:    handler,
		logger:     logger,
		minBackoff: 100 * time.Millisecond,
		maxBackoff: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until ctx is cancelled or the client is closed. Both are a clean
// stop and return nil.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.WarnContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var stop error
		fetches.EachRecord(func(rec *kgo.Record) {
			if stop != nil {
				return
			}
			stop = c.process(ctx, rec)
		})
		if stop != nil {
			if ctx.Err() != nil {
				return nil
			}
			return stop
		}
	}
}

// process retries the handler until it accepts the record or ctx ends, then
// commits the record.
func (c *Consumer) process(ctx context.Context, rec *kgo.Record) error {
	msg := toMessage(rec)
	delay := c.minBackoff
	for {
		err := c.handler.Handle(ctx, msg)
		if err == nil {
			break
		}
		c.logger.ErrorContext(ctx, "message handler failed, retrying",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"retry_in", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, c.maxBackoff)
	}

	if err := c.client.CommitRecords(ctx, rec); err != nil {
		// Redelivered after the next rebalance or restart.
		c.logger.ErrorContext(ctx, "commit failed",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
	return nil
}

func toMessage(rec *kgo.Record) *Message {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   headers,
		Timestamp: rec.Timestamp,
	}
}
