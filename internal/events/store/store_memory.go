// Package store persists the ledger event log.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"coldchain/internal/events"
	"coldchain/internal/events/chain"
	"coldchain/pkg/requestcontext"
)

// InMemory keeps the log in a slice indexed by Seq-1.
type InMemory struct {
	mu     sync.RWMutex
	events []events.Event
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

// Append assigns the next Seq, seals the event into the hash chain and
// stores it.
func (s *InMemory) Append(ctx context.Context, e events.Event) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := chain.Genesis
	if n := len(s.events); n > 0 {
		prev = s.events[n-1].Hash
	}
	prepare(ctx, &e)
	e.Seq = uint64(len(s.events)) + 1
	if err := chain.Seal(prev, &e); err != nil {
		return events.Event{}, err
	}
	s.events = append(s.events, e)
	return e, nil
}

// ListAfter returns up to limit events with Seq > after, in order.
func (s *InMemory) ListAfter(_ context.Context, after uint64, limit int) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if after >= uint64(len(s.events)) || limit <= 0 {
		return nil, nil
	}
	end := min(after+uint64(limit), uint64(len(s.events)))
	out := make([]events.Event, end-after)
	copy(out, s.events[after:end])
	return out, nil
}

// LastSeq returns the Seq of the newest event, 0 for an empty log.
func (s *InMemory) LastSeq(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.events)), nil
}

func prepare(ctx context.Context, e *events.Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = requestcontext.Now(ctx)
	}
}
