package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// EntityKind names one of the business entity collections the overview worker observes
type EntityKind string

const (
	EntityKindContacts EntityKind = "contacts"
	EntityKindDeals    EntityKind = "deals"
	EntityKindEvents   EntityKind = "events"
)

// AllEntityKinds lists every observable kind in detection order
var AllEntityKinds = []EntityKind{EntityKindContacts, EntityKindDeals, EntityKindEvents}

// Valid reports whether k is a known entity kind
func (k EntityKind) Valid() bool {
	return slices.Contains(AllEntityKinds, k)
}

const (
	// DefaultCooldownSeconds is used when a user enables the worker without a cooldown
	DefaultCooldownSeconds = 900
	// MinCooldownSeconds is the smallest accepted cooldown
	MinCooldownSeconds = 60
)

// WorkerState is the persisted per-user overview worker state.
// LastRunAt is the watermark: changes are detected strictly after it.
type WorkerState struct {
	UserID                uuid.UUID      `json:"user_id"`
	LastRunAt             time.Time      `json:"last_run_at"`
	CooldownPeriodSeconds int            `json:"cooldown_period_seconds"`
	ObservedKinds         []EntityKind   `json:"observed_kinds"`
	Enabled               bool           `json:"enabled"`
	Metadata              WorkerMetadata `json:"metadata"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// NewWorkerState returns the default state for a user seen for the first time
func NewWorkerState(userID uuid.UUID, now time.Time) *WorkerState {
	return &WorkerState{
		UserID:                userID,
		LastRunAt:             now,
		CooldownPeriodSeconds: DefaultCooldownSeconds,
		ObservedKinds:         slices.Clone(AllEntityKinds),
		Enabled:               true,
		Metadata:              WorkerMetadata{},
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// Cooldown returns the cooldown period as a duration
func (s *WorkerState) Cooldown() time.Duration {
	return time.Duration(s.CooldownPeriodSeconds) * time.Second
}

// NextRunAt returns the earliest time the next full cycle may run
func (s *WorkerState) NextRunAt() time.Time {
	return s.LastRunAt.Add(s.Cooldown())
}

// Observes reports whether the state includes kind
func (s *WorkerState) Observes(kind EntityKind) bool {
	return slices.Contains(s.ObservedKinds, kind)
}
