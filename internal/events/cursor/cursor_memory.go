// Package cursor persists how far the dispatcher has delivered the event log.
package cursor

import (
	"context"
	"sync"
)

// InMemory forgets its position on restart, so every event is redelivered.
type InMemory struct {
	mu  sync.Mutex
	seq uint64
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (c *InMemory) Load(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq, nil
}

func (c *InMemory) Store(_ context.Context, seq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
	return nil
}
