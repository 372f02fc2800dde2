package database

import (
	"context"
	"time"

	"github.com/benvon/smart-crm/internal/models"
	"github.com/google/uuid"
)

// WorkerStateRepositoryInterface defines the worker state operations used by the scheduler
// This interface enables better testability by allowing mock implementations
type WorkerStateRepositoryInterface interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.WorkerState, error)
	CreateIfAbsent(ctx context.Context, state *models.WorkerState) (*models.WorkerState, bool, error)
	Upsert(ctx context.Context, state *models.WorkerState) error
	MarkRun(ctx context.Context, userID uuid.UUID, runAt time.Time, metadata models.WorkerMetadata) error
	ListStale(ctx context.Context, before time.Time, limit int) ([]*models.WorkerState, error)
}

// ChangeRepositoryInterface defines the entity store query used by change detection
type ChangeRepositoryInterface interface {
	ListChangedSince(ctx context.Context, kind models.EntityKind, userID uuid.UUID, since time.Time, limit int) ([]models.ChangeRecord, error)
}

// ActionItemRepositoryInterface defines the action item operations used by the executor
type ActionItemRepositoryInterface interface {
	Create(ctx context.Context, item *models.ActionItem) error
	DeleteMatching(ctx context.Context, userID uuid.UUID, pattern string) (int64, error)
}

// NotificationRepositoryInterface defines the notification operations used by the executor
type NotificationRepositoryInterface interface {
	Create(ctx context.Context, n *models.Notification) error
	GetUndelivered(ctx context.Context, userID uuid.UUID, dedupKey string) (*models.Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ForecastRepositoryInterface defines the aggregate figures used to ground analysis
type ForecastRepositoryInterface interface {
	Summary(ctx context.Context, userID uuid.UUID, now time.Time) (*models.ForecastSummary, error)
}

// Ensure concrete types implement the interfaces
var (
	_ WorkerStateRepositoryInterface  = (*WorkerStateRepository)(nil)
	_ ChangeRepositoryInterface       = (*ChangeRepository)(nil)
	_ ActionItemRepositoryInterface   = (*ActionItemRepository)(nil)
	_ NotificationRepositoryInterface = (*NotificationRepository)(nil)
	_ ForecastRepositoryInterface     = (*ForecastRepository)(nil)
)
