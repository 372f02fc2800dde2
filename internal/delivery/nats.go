package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSSink publishes events on a per-user NATS subject
type NATSSink struct {
	nc *nats.Conn
}

// ConnectNATS dials the server, retrying with exponential backoff until ctx is done
func ConnectNATS(ctx context.Context, url string, logger *zap.Logger) (*NATSSink, error) {
	var nc *nats.Conn
	op := func() error {
		var err error
		nc, err = nats.Connect(url,
			nats.Name("smart-crm-overview"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			logger.Warn("nats_connect_retry", zap.Error(err))
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{nc: nc}, nil
}

// NewNATSSink wraps an existing connection
func NewNATSSink(nc *nats.Conn) *NATSSink {
	return &NATSSink{nc: nc}
}

// Subject returns the subject events for a user are published on
func Subject(userID uuid.UUID) string {
	return "users." + userID.String() + ".events"
}

// Push implements Sink
func (s *NATSSink) Push(ctx context.Context, userID uuid.UUID, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := encodeEnvelope(userID, event, payload)
	if err != nil {
		return err
	}
	if err := s.nc.Publish(Subject(userID), data); err != nil {
		return fmt.Errorf("failed to publish %s to nats: %w", event, err)
	}
	return nil
}

// Close drains and closes the connection
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}

var _ Sink = (*NATSSink)(nil)
