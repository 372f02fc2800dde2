package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSink publishes events on a per-user Redis pub/sub channel
type RedisSink struct {
	client *redis.Client
	prefix string
}

// NewRedisSink creates a sink over an existing client
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, prefix: "user"}
}

// Channel returns the pub/sub channel for a user
func (s *RedisSink) Channel(userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:events", s.prefix, userID)
}

// Push implements Sink
func (s *RedisSink) Push(ctx context.Context, userID uuid.UUID, event string, payload any) error {
	data, err := encodeEnvelope(userID, event, payload)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.Channel(userID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to redis: %w", event, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller
func (s *RedisSink) Close() error {
	return nil
}

var _ Sink = (*RedisSink)(nil)
