package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Message is the envelope published on a tenant topic.
type Message struct {
	Event string  `json:"event"`
	Data  Payload `json:"data"`
}

// RedisPublisher publishes events on the tenant's pub/sub topic.
type RedisPublisher struct {
	rdb redis.Cmdable
}

// NewRedisPublisher creates a RedisPublisher.
func NewRedisPublisher(rdb redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Name() string { return "redis" }

// Notify implements Sink.
func (p *RedisPublisher) Notify(ctx context.Context, e Event) error {
	body, err := json.Marshal(Message{Event: e.Name(), Data: e.Payload()})
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.rdb.Publish(ctx, Topic(e.TenantID), body).Err(); err != nil {
		return fmt.Errorf("publishing %s: %w", e.Name(), err)
	}
	return nil
}
