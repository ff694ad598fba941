package cursor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the cursor under a single key.
type Redis struct {
	client redis.Cmdable
	key    string
}

func NewRedis(client redis.Cmdable, key string) *Redis {
	return &Redis{client: client, key: key}
}

// Load returns 0 when the key has never been written.
func (c *Redis) Load(ctx context.Context) (uint64, error) {
	raw, err := c.client.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load dispatch cursor: %w", err)
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse dispatch cursor %q: %w", raw, err)
	}
	return seq, nil
}

func (c *Redis) Store(ctx context.Context, seq uint64) error {
	if err := c.client.Set(ctx, c.key, strconv.FormatUint(seq, 10), 0).Err(); err != nil {
		return fmt.Errorf("store dispatch cursor: %w", err)
	}
	return nil
}
