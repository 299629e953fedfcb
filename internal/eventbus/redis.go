package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stocksentry/stocksentry/pkg/types"
)

// RedisBus is a Bus backed by Redis pub/sub, for deployments where the
// inventory service and the rules engine run as separate processes.
type RedisBus struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger

	mu      sync.Mutex
	pubsubs []*goredis.PubSub
}

// NewRedis creates a Redis-backed event bus.
func NewRedis(cfg *types.RedisConfig, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.ChannelKey
	if prefix == "" {
		prefix = "stocksentry:"
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisBus{client: client, prefix: prefix, logger: logger}
}

// NewRedisFromClient wraps an existing client (useful for testing).
func NewRedisFromClient(client *goredis.Client, prefix string, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "stocksentry:"
	}
	return &RedisBus{client: client, prefix: prefix, logger: logger}
}

// Ping checks connectivity to the Redis server.
func (b *RedisBus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Publish sends the event as JSON on the channel named after the event.
func (b *RedisBus) Publish(ctx context.Context, event types.BusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal bus event: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+event.Name, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Name, err)
	}
	return nil
}

// Subscribe listens on the Redis channel for the named event and pumps
// decoded events into a typed channel until cancelled.
func (b *RedisBus) Subscribe(name string) (<-chan types.BusEvent, func()) {
	pubsub := b.client.Subscribe(context.Background(), b.prefix+name)

	b.mu.Lock()
	b.pubsubs = append(b.pubsubs, pubsub)
	b.mu.Unlock()

	out := make(chan types.BusEvent, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event types.BusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Error("failed to decode bus event", "channel", msg.Channel, "error", err)
				continue
			}
			out <- event
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return out, cancel
}

// Close shuts down all subscriptions and the client connection.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	for _, ps := range b.pubsubs {
		_ = ps.Close()
	}
	b.pubsubs = nil
	b.mu.Unlock()
	return b.client.Close()
}
