package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClient struct {
	mu        sync.Mutex
	batches   []kgo.Fetches
	committed []int64
}

func (f *fakeClient) PollFetches(ctx context.Context) kgo.Fetches {
	f.mu.Lock()
	if len(f.batches) > 0 {
		next := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return next
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kgo.Fetches{}
}

func (f *fakeClient) CommitRecords(_ context.Context, rs ...*kgo.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rs {
		f.committed = append(f.committed, r.Offset)
	}
	return nil
}

func (f *fakeClient) offsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func fetchOf(topic string, records ...*kgo.Record) kgo.Fetches {
	for _, r := range records {
		r.Topic = topic
	}
	return kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic:      topic,
			Partitions: []kgo.FetchPartition{{Partition: 0, Records: records}},
		}},
	}}
}

func TestConsumer_CommitsAcceptedRecords(t *testing.T) {
	client := &fakeClient{batches: []kgo.Fetches{
		fetchOf("sensor", &kgo.Record{Offset: 0, Value: []byte("a")}, &kgo.Record{Offset: 1, Value: []byte("b")}),
	}}

	var seen []string
	handler := HandlerFunc(func(_ context.Context, msg *Message) error {
		seen = append(seen, string(msg.Value))
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := New(client, handler, discard).Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, []int64{0, 1}, client.offsets())
}

func TestConsumer_RetriesUntilHandlerAccepts(t *testing.T) {
	client := &fakeClient{batches: []kgo.Fetches{
		fetchOf("sensor", &kgo.Record{Offset: 7}),
	}}

	attempts := 0
	handler := HandlerFunc(func(context.Context, *Message) error {
		attempts++
		if attempts < 3 {
			return errors.New("database unavailable")
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c := New(client, handler, discard, WithBackoff(time.Millisecond, 2*time.Millisecond))
	_ = c.Run(ctx)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int64{7}, client.offsets())
}

func TestConsumer_DoesNotCommitWhenCancelledMidRetry(t *testing.T) {
	client := &fakeClient{batches: []kgo.Fetches{
		fetchOf("sensor", &kgo.Record{Offset: 3}),
	}}
	handler := HandlerFunc(func(context.Context, *Message) error {
		return errors.New("still down")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := New(client, handler, discard, WithBackoff(5*time.Millisecond, 10*time.Millisecond)).Run(ctx)

	require.NoError(t, err)
	assert.Empty(t, client.offsets())
}

func TestConsumer_CancelIsACleanStop(t *testing.T) {
	client := &fakeClient{}
	handler := HandlerFunc(func(context.Context, *Message) error { return nil })

	parent, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(parent)
	g.Go(func() error { return New(client, handler, discard).Run(gctx) })

	time.Sleep(10 * time.Millisecond)
	cancel()

	require.NoError(t, g.Wait(), "shutdown must not surface as a run error")
}

func TestRouter(t *testing.T) {
	var got []string
	named := func(name string) Handler {
		return HandlerFunc(func(context.Context, *Message) error {
			got = append(got, name)
			return nil
		})
	}

	t.Run("routes by topic", func(t *testing.T) {
		got = nil
		r := NewRouter(discard, nil)
		r.Register("sensor", named("sensor"))
		require.NoError(t, r.Handle(context.Background(), &Message{Topic: "sensor"}))
		assert.Equal(t, []string{"sensor"}, got)
		assert.Equal(t, []string{"sensor"}, r.Topics())
	})

	t.Run("unknown topic uses fallback", func(t *testing.T) {
		got = nil
		r := NewRouter(discard, named("fallback"))
		require.NoError(t, r.Handle(context.Background(), &Message{Topic: "other"}))
		assert.Equal(t, []string{"fallback"}, got)
	})

	t.Run("unknown topic without fallback is skipped", func(t *testing.T) {
		got = nil
		r := NewRouter(discard, nil)
		require.NoError(t, r.Handle(context.Background(), &Message{Topic: "other"}))
		assert.Empty(t, got)
	})
}
