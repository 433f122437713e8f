package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTransport publishes channel messages over Redis pub/sub, as an
// alternative broker to NATS.
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport connects to Redis and verifies the connection.
func NewRedisTransport(ctx context.Context, addr, password string) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisTransport{client: client}, nil
}

// Publish sends the payload to the Redis channel of the same name.
func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload).Err()
}

// SubscribeAll invokes handle for every channel message published by any
// instance. Pattern subscription covers both user and role channels.
func (t *RedisTransport) SubscribeAll(ctx context.Context, handle func(channel string, payload []byte)) {
	sub := t.client.PSubscribe(ctx, "user:*", "role:*")
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				handle(msg.Channel, []byte(msg.Payload))
			}
		}
	}()
}

// Close releases the client.
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
