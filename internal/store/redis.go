package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/metrics"
)

// relayBuffer is the number of relayed frames held per subscription before
// the reader blocks.
const relayBuffer = 256

// RedisStore holds the Redis connection used for rate limiting and for
// relaying realtime frames between server instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client returns the underlying client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Publish sends payload to every subscriber of channel.
func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	start := time.Now()
	defer func() { metrics.RedisLatency.Observe(time.Since(start).Seconds()) }()

	return s.client.Publish(ctx, channel, payload).Err()
}

// Subscribe streams the payloads published to channel until ctx ends or the
// returned close function is called.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	sub := s.client.Subscribe(ctx, channel)

	// wait for the subscription confirmation so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, relayBuffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, sub.Close, nil
}
