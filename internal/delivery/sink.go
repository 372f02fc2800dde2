package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event names pushed to clients
const (
	EventForecastRefresh = "forecast_refresh"
	EventNotification    = "notification"
)

// Sink pushes real-time events to a user's connected clients.
// Delivery is fire-and-forget: no client acknowledgement is awaited.
type Sink interface {
	Push(ctx context.Context, userID uuid.UUID, event string, payload any) error
	Close() error
}

// Envelope is the JSON message published for every event
type Envelope struct {
	Event   string          `json:"event"`
	UserID  uuid.UUID       `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

func encodeEnvelope(userID uuid.UUID, event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	data, err := json.Marshal(Envelope{
		Event:   event,
		UserID:  userID,
		Payload: raw,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}
