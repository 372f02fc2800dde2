package workers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/benvon/smart-crm/internal/database"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/benvon/smart-crm/internal/queue"
	"github.com/benvon/smart-crm/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidConfig wraps validation failures of admin requests
var ErrInvalidConfig = errors.New("invalid worker configuration")

// EnableRequest configures a user's worker. Zero values take the defaults.
type EnableRequest struct {
	CooldownSeconds int                 `json:"cooldown_period_seconds,omitempty" validate:"omitempty,min=60,max=604800"`
	ObservedKinds   []models.EntityKind `json:"observed_kinds,omitempty" validate:"omitempty,unique,dive,entity_kind"`
}

// ConfigUpdate changes selected attributes of a user's worker
type ConfigUpdate struct {
	CooldownSeconds *int                `json:"cooldown_period_seconds,omitempty" validate:"omitempty,min=60,max=604800"`
	ObservedKinds   []models.EntityKind `json:"observed_kinds,omitempty" validate:"omitempty,min=1,unique,dive,entity_kind"`
	Enabled         *bool               `json:"enabled,omitempty"`
}

// WorkerStatus is the admin view of a user's worker
type WorkerStatus struct {
	UserID                uuid.UUID           `json:"user_id"`
	Enabled               bool                `json:"enabled"`
	CooldownPeriodSeconds int                 `json:"cooldown_period_seconds"`
	ObservedKinds         []models.EntityKind `json:"observed_kinds"`
	LastRunAt             time.Time           `json:"last_run_at"`
	NextRunAt             time.Time           `json:"next_run_at"`
	LastSuccessAt         *time.Time          `json:"last_success_at,omitempty"`
	LastResult            any                 `json:"last_result,omitempty"`
}

// RunNowResult reports whether a manual cycle was enqueued
type RunNowResult struct {
	Enqueued bool `json:"enqueued"`
}

// OverviewAdmin exposes the administrative operations on worker state
type OverviewAdmin struct {
	states database.WorkerStateRepositoryInterface
	jobs   queue.Scheduler
	cfg    SchedulerConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewOverviewAdmin creates the admin service
func NewOverviewAdmin(states database.WorkerStateRepositoryInterface, jobs queue.Scheduler, cfg SchedulerConfig, log *zap.Logger) *OverviewAdmin {
	if log == nil {
		log = zap.NewNop()
	}
	return &OverviewAdmin{
		states: states,
		jobs:   jobs,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		logger: log,
	}
}

// WithClock overrides the admin clock
func (a *OverviewAdmin) WithClock(now func() time.Time) *OverviewAdmin {
	a.now = now
	return a
}

// Enable creates or replaces the user's worker configuration and schedules the first run.
// An existing watermark is kept so enabling again does not replay old changes.
func (a *OverviewAdmin) Enable(ctx context.Context, userID uuid.UUID, req EnableRequest) (*WorkerStatus, error) {
	if err := validation.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	now := a.now().UTC()
	state, err := a.getOrNew(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	state.Enabled = true
	state.CooldownPeriodSeconds = a.cfg.DefaultCooldownSeconds
	if req.CooldownSeconds > 0 {
		state.CooldownPeriodSeconds = req.CooldownSeconds
	}
	state.ObservedKinds = slices.Clone(models.AllEntityKinds)
	if len(req.ObservedKinds) > 0 {
		state.ObservedKinds = slices.Clone(req.ObservedKinds)
	}
	state.UpdatedAt = now

	if err := a.states.Upsert(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to enable worker: %w", err)
	}

	firstRun := max(state.NextRunAt().Sub(now), 0)
	if _, err := a.jobs.Schedule(ctx, queue.NewCycleJob(userID, false), firstRun, a.cfg.UniqueWithin); err != nil {
		a.logger.Warn("overview_enable_schedule_failed", zap.String("user_id", userID.String()), zap.Error(err))
	}

	a.logger.Info("overview_worker_enabled",
		zap.String("user_id", userID.String()),
		zap.Int("cooldown_period_seconds", state.CooldownPeriodSeconds),
		zap.Duration("first_run_in", firstRun),
	)
	return statusOf(state), nil
}

// Disable stops future cycles for the user; pending jobs skip with reason "disabled"
func (a *OverviewAdmin) Disable(ctx context.Context, userID uuid.UUID) (*WorkerStatus, error) {
	disabled := false
	return a.UpdateConfig(ctx, userID, ConfigUpdate{Enabled: &disabled})
}

// UpdateConfig applies the non-nil attributes of update
func (a *OverviewAdmin) UpdateConfig(ctx context.Context, userID uuid.UUID, update ConfigUpdate) (*WorkerStatus, error) {
	if err := validation.Struct(update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	state, err := a.states.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load worker state: %w", err)
	}

	wasEnabled := state.Enabled
	if update.CooldownSeconds != nil {
		state.CooldownPeriodSeconds = *update.CooldownSeconds
	}
	if update.ObservedKinds != nil {
		state.ObservedKinds = slices.Clone(update.ObservedKinds)
	}
	if update.Enabled != nil {
		state.Enabled = *update.Enabled
	}
	now := a.now().UTC()
	state.UpdatedAt = now

	if err := a.states.Upsert(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to update worker config: %w", err)
	}

	if state.Enabled && !wasEnabled {
		firstRun := max(state.NextRunAt().Sub(now), 0)
		if _, err := a.jobs.Schedule(ctx, queue.NewCycleJob(userID, false), firstRun, a.cfg.UniqueWithin); err != nil {
			a.logger.Warn("overview_enable_schedule_failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}

	a.logger.Info("overview_worker_config_updated",
		zap.String("user_id", userID.String()),
		zap.Bool("enabled", state.Enabled),
		zap.Int("cooldown_period_seconds", state.CooldownPeriodSeconds),
	)
	return statusOf(state), nil
}

// RunNow enqueues an immediate manual cycle. The cycle still honours the cooldown,
// and repeated requests within the dedup window collapse into one job.
func (a *OverviewAdmin) RunNow(ctx context.Context, userID uuid.UUID) (*RunNowResult, error) {
	if _, err := a.states.Get(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load worker state: %w", err)
	}
	enqueued, err := a.jobs.Schedule(ctx, queue.NewCycleJob(userID, true), 0, a.cfg.UniqueWithin)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue run-now: %w", err)
	}
	return &RunNowResult{Enqueued: enqueued}, nil
}

// Status returns the user's worker state
func (a *OverviewAdmin) Status(ctx context.Context, userID uuid.UUID) (*WorkerStatus, error) {
	state, err := a.states.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load worker state: %w", err)
	}
	return statusOf(state), nil
}

func (a *OverviewAdmin) getOrNew(ctx context.Context, userID uuid.UUID, now time.Time) (*models.WorkerState, error) {
	state, err := a.states.Get(ctx, userID)
	if err == nil {
		return state, nil
	}
	if errors.Is(err, database.ErrNotFound) {
		return models.NewWorkerState(userID, now), nil
	}
	return nil, fmt.Errorf("failed to load worker state: %w", err)
}

func statusOf(state *models.WorkerState) *WorkerStatus {
	status := &WorkerStatus{
		UserID:                state.UserID,
		Enabled:               state.Enabled,
		CooldownPeriodSeconds: state.CooldownPeriodSeconds,
		ObservedKinds:         state.ObservedKinds,
		LastRunAt:             state.LastRunAt,
		NextRunAt:             state.NextRunAt(),
		LastResult:            state.Metadata[models.MetadataLastResult],
	}
	if t, ok := state.Metadata.LastSuccessAt(); ok {
		status.LastSuccessAt = &t
	}
	return status
}
