package service

import (
	"context"
	"sync"
	"time"

	"coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
)

// LedgerTx is the unit of atomic mutation for one shipment. Implementations
// serialize every fn for the same key and make its writes all-or-nothing.
// fn receives the context stores must use to join the transaction.
type LedgerTx interface {
	RunInTx(ctx context.Context, key domain.ShipmentID, fn func(ctx context.Context) error) error
}

// numLedgerShards spreads shipment keys over independent mutexes so unrelated
// shipments rarely contend.
const numLedgerShards = 128

// DefaultTxTimeout bounds how long a mutation may wait for and hold its shard.
const DefaultTxTimeout = 5 * time.Second

// ShardedTx serializes in-memory mutations per shipment. The in-memory stores
// cannot fail after validation, so holding the shard across validate, mutate
// and record is what makes a mutation atomic.
type ShardedTx struct {
	shards  [numLedgerShards]sync.Mutex
	timeout time.Duration
}

func NewShardedTx(timeout time.Duration) *ShardedTx {
	return &ShardedTx{timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, key domain.ShipmentID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := &t.shards[shardFor(key)]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

func shardFor(key domain.ShipmentID) int {
	return int(hashKey(key.String()) % numLedgerShards)
}

// hashKey is FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
