package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionItem is a recommended next step shown to the user
type ActionItem struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Icon      string    `json:"icon"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Dismissed bool      `json:"dismissed"`
	DedupKey  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is a persisted message for the user
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Kind      string    `json:"kind"`
	Priority  string    `json:"priority"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read        bool       `json:"read"`
	DedupKey    string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// ForecastSummary holds the aggregate pipeline figures used to ground analysis
type ForecastSummary struct {
	OpenDeals     int     `json:"open_deals"`
	PipelineValue float64 `json:"pipeline_value"`
	WeightedValue float64 `json:"weighted_value"`
	WonThisMonth  float64 `json:"won_this_month"`
	LostThisMonth float64 `json:"lost_this_month"`
}
