package live

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus fans invalidations out across API replicas via Redis pub/sub, so
// a write on one replica re-snapshots subscriptions held by another.
type RedisBus struct {
	client *redis.Client
	prefix string
}

func NewRedisBus(redisURL string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisBus{client: client, prefix: "live:"}, nil
}

// NewRedisBusWithClient creates a bus from an existing Redis client.
func NewRedisBusWithClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, prefix: "live:"}
}

func (b *RedisBus) channel(path string) string {
	return b.prefix + path
}

func (b *RedisBus) Publish(ctx context.Context, path string) error {
	if err := b.client.Publish(ctx, b.channel(path), "1").Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(path string, notify func()) (cancel func()) {
	pubsub := b.client.Subscribe(context.Background(), b.channel(path))

	go func() {
		for range pubsub.Channel() {
			notify()
		}
	}()

	return func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("live: close redis subscription %s: %v", path, err)
		}
	}
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
