package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"coldchain/internal/events"
	"coldchain/internal/events/metrics"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Redis fans events out over Pub/Sub: every event goes to the base channel
// and to "<channel>:<shipment id>".
type Redis struct {
	client  publisher
	channel string
	metrics *metrics.Metrics
}

func NewRedis(client publisher, channel string, m *metrics.Metrics) *Redis {
	return &Redis{client: client, channel: channel, metrics: m}
}

func (r *Redis) Name() string { return "redis" }

// ShipmentChannel is the per-shipment channel for id.
func (r *Redis) ShipmentChannel(id string) string {
	return r.channel + ":" + id
}

func (r *Redis) Deliver(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis sink: encode event %d: %w", e.Seq, err)
	}
	for _, ch := range []string{r.channel, r.ShipmentChannel(e.ShipmentID.String())} {
		if err := r.client.Publish(ctx, ch, payload).Err(); err != nil {
			r.metrics.ObserveDelivery(r.Name(), "error")
			return fmt.Errorf("redis sink: publish event %d to %s: %w", e.Seq, ch, err)
		}
	}
	r.metrics.ObserveDelivery(r.Name(), "ok")
	return nil
}
