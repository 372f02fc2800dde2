package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-crm/internal/database"
	"github.com/benvon/smart-crm/internal/logger"
	"github.com/benvon/smart-crm/internal/metrics"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/benvon/smart-crm/internal/queue"
	"github.com/benvon/smart-crm/internal/services/overview"
	"github.com/benvon/smart-crm/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CycleState is where a cycle ended up
type CycleState string

const (
	CycleStateIdle    CycleState = "idle"
	CycleStateRunning CycleState = "running"
	CycleStateSkipped CycleState = "skipped"
	CycleStateFailed  CycleState = "failed"
)

// SkipReason explains a Skipped cycle
type SkipReason string

const (
	SkipInitialized SkipReason = "initialized"
	SkipDisabled    SkipReason = "disabled"
	SkipCooldown    SkipReason = "cooldown"
)

// DefaultPollInterval caps how long a cooldown skip waits before checking again
const DefaultPollInterval = 5 * time.Minute

// ChangeDetector finds changes after a watermark
type ChangeDetector interface {
	Detect(ctx context.Context, userID uuid.UUID, watermark time.Time, observedKinds []models.EntityKind) (*models.ChangeSet, error)
}

// RecommendationAnalyzer turns a change set into a Recommendation
type RecommendationAnalyzer interface {
	Analyze(ctx context.Context, userID uuid.UUID, cs *models.ChangeSet) (*models.Recommendation, error)
}

// ActionExecutor applies a Recommendation
type ActionExecutor interface {
	Execute(ctx context.Context, userID uuid.UUID, cycleKey string, rec *models.Recommendation) (*overview.ExecutionResult, error)
}

// SchedulerConfig tunes cycle scheduling
type SchedulerConfig struct {
	DefaultCooldownSeconds int
	PollInterval           time.Duration
	UniqueWithin           time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.DefaultCooldownSeconds < models.MinCooldownSeconds {
		c.DefaultCooldownSeconds = models.DefaultCooldownSeconds
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.UniqueWithin <= 0 {
		c.UniqueWithin = queue.DefaultUniqueWithin
	}
	return c
}

// CycleResult describes one RunCycle call
type CycleResult struct {
	UserID        uuid.UUID                 `json:"user_id"`
	State         CycleState                `json:"state"`
	SkipReason    SkipReason                `json:"skip_reason,omitempty"`
	RunAt         time.Time                 `json:"run_at"`
	NextCheckIn   time.Duration             `json:"next_check_in"`
	NextScheduled bool                      `json:"next_scheduled"`
	TotalChanges  int                       `json:"total_changes"`
	Execution     *overview.ExecutionResult `json:"execution,omitempty"`
}

// OverviewScheduler drives the per-user Detect, Analyze, Execute cycle
type OverviewScheduler struct {
	states   database.WorkerStateRepositoryInterface
	detector ChangeDetector
	analyzer RecommendationAnalyzer
	executor ActionExecutor
	jobs     queue.Scheduler
	cfg      SchedulerConfig
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewOverviewScheduler creates a scheduler
func NewOverviewScheduler(
	states database.WorkerStateRepositoryInterface,
	detector ChangeDetector,
	analyzer RecommendationAnalyzer,
	executor ActionExecutor,
	jobs queue.Scheduler,
	cfg SchedulerConfig,
	m *metrics.Metrics,
	log *zap.Logger,
) *OverviewScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OverviewScheduler{
		states:   states,
		detector: detector,
		analyzer: analyzer,
		executor: executor,
		jobs:     jobs,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		now:      time.Now,
		logger:   log,
	}
}

// WithClock overrides the scheduler clock
func (s *OverviewScheduler) WithClock(now func() time.Time) *OverviewScheduler {
	s.now = now
	return s
}

// RunCycle runs one cycle for userID. Skips are results, not errors. Any stage failure leaves
// the worker state untouched and is returned classified; a routine next check is scheduled on every path.
func (s *OverviewScheduler) RunCycle(ctx context.Context, userID uuid.UUID) (result *CycleResult, err error) {
	now := s.now().UTC()
	result = &CycleResult{UserID: userID, State: CycleStateIdle, RunAt: now}
	log := s.logger.With(zap.String("user_id", logger.SanitizeUserID(userID.String())))

	ctx, span := telemetry.StartStage(ctx, "cycle", userID)
	defer func() {
		span.SetAttributes(
			attribute.String("overview.state", string(result.State)),
			attribute.String("overview.skip_reason", string(result.SkipReason)),
		)
		telemetry.EndStage(span, err)
	}()

	state, err := s.loadState(ctx, userID, now)
	if err != nil {
		result.State = CycleStateFailed
		s.scheduleNext(ctx, log, result, time.Duration(s.cfg.DefaultCooldownSeconds)*time.Second)
		s.metrics.CycleFinished(metrics.OutcomeFailed, "persistence")
		return result, err
	}
	if state.created {
		return s.skip(ctx, log, result, SkipInitialized, state.Cooldown()), nil
	}
	if !state.Enabled {
		return s.skip(ctx, log, result, SkipDisabled, state.Cooldown()), nil
	}
	if nextRun := state.NextRunAt(); now.Before(nextRun) {
		return s.skip(ctx, log, result, SkipCooldown, min(nextRun.Sub(now), s.cfg.PollInterval)), nil
	}

	result.State = CycleStateRunning
	exec, total, err := s.runStages(ctx, userID, state.WorkerState)
	result.TotalChanges = total
	result.Execution = exec
	if err != nil {
		result.State = CycleStateFailed
		s.scheduleNext(ctx, log, result, state.Cooldown())
		s.metrics.CycleFinished(metrics.OutcomeFailed, failureReason(err))
		log.Warn("overview_cycle_failed",
			zap.String("reason", failureReason(err)),
			logger.ErrorField(err),
		)
		return result, err
	}

	metadata := state.Metadata.Merge(models.SuccessMetadata(now, models.ExecutionSummary{
		TotalChanges:      total,
		ForecastUpdated:   exec.ForecastUpdated,
		ItemsAdded:        exec.ItemsAdded,
		ItemsRemoved:      exec.ItemsRemoved,
		NotificationsSent: exec.NotificationsSent,
	}))
	if err := s.states.MarkRun(ctx, userID, now, metadata); err != nil {
		result.State = CycleStateFailed
		err = &overview.PersistenceError{Op: "mark run", Err: err}
		s.scheduleNext(ctx, log, result, state.Cooldown())
		s.metrics.CycleFinished(metrics.OutcomeFailed, "persistence")
		log.Warn("overview_cycle_failed", zap.String("reason", "persistence"), logger.ErrorField(err))
		return result, err
	}

	result.State = CycleStateIdle
	s.scheduleNext(ctx, log, result, state.Cooldown())
	s.metrics.CycleFinished(metrics.OutcomeSuccess, "")
	log.Info("overview_cycle_completed",
		zap.Int("total_changes", total),
		zap.Bool("forecast_updated", exec.ForecastUpdated),
		zap.Int("items_added", exec.ItemsAdded),
		zap.Int("items_removed", exec.ItemsRemoved),
		zap.Int("notifications_sent", exec.NotificationsSent),
		zap.Int("duplicates", exec.Duplicates),
		zap.Int("failures", exec.Failures),
	)
	return result, nil
}

type loadedState struct {
	*models.WorkerState
	created bool
}

func (s *OverviewScheduler) loadState(ctx context.Context, userID uuid.UUID, now time.Time) (*loadedState, error) {
	state, err := s.states.Get(ctx, userID)
	if err == nil {
		return &loadedState{WorkerState: state}, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, &overview.PersistenceError{Op: "load", Err: err}
	}

	fresh := models.NewWorkerState(userID, now)
	fresh.CooldownPeriodSeconds = s.cfg.DefaultCooldownSeconds
	stored, created, err := s.states.CreateIfAbsent(ctx, fresh)
	if err != nil {
		return nil, &overview.PersistenceError{Op: "create", Err: err}
	}
	return &loadedState{WorkerState: stored, created: created}, nil
}

// runStages runs Detect, Analyze and Execute in order, each fed by the previous stage
func (s *OverviewScheduler) runStages(ctx context.Context, userID uuid.UUID, state *models.WorkerState) (*overview.ExecutionResult, int, error) {
	start := time.Now()
	stageCtx, span := telemetry.StartStage(ctx, "detect", userID)
	changes, err := s.detector.Detect(stageCtx, userID, state.LastRunAt, state.ObservedKinds)
	telemetry.EndStage(span, err)
	s.metrics.ObserveStage("detect", start)
	if err != nil {
		return nil, 0, err
	}

	start = time.Now()
	stageCtx, span = telemetry.StartStage(ctx, "analyze", userID,
		attribute.Int("overview.total_changes", changes.Summary.TotalChanges))
	rec, err := s.analyzer.Analyze(stageCtx, userID, changes)
	telemetry.EndStage(span, err)
	s.metrics.ObserveStage("analyze", start)
	if err != nil {
		return nil, changes.Summary.TotalChanges, err
	}

	start = time.Now()
	stageCtx, span = telemetry.StartStage(ctx, "execute", userID)
	exec, err := s.executor.Execute(stageCtx, userID, cycleKey(state.LastRunAt), rec)
	telemetry.EndStage(span, err)
	s.metrics.ObserveStage("execute", start)
	if exec != nil {
		s.metrics.AddActions("item_added", exec.ItemsAdded)
		s.metrics.AddActions("item_removed", exec.ItemsRemoved)
		s.metrics.AddActions("notification_sent", exec.NotificationsSent)
		s.metrics.AddActions("duplicate", exec.Duplicates)
		s.metrics.AddActions("failure", exec.Failures)
		if exec.ForecastUpdated {
			s.metrics.AddActions("forecast_refresh", 1)
		}
	}
	if err != nil {
		return exec, changes.Summary.TotalChanges, err
	}
	if exec == nil {
		exec = &overview.ExecutionResult{}
	}
	return exec, changes.Summary.TotalChanges, nil
}

func (s *OverviewScheduler) skip(ctx context.Context, log *zap.Logger, result *CycleResult, reason SkipReason, next time.Duration) *CycleResult {
	result.State = CycleStateSkipped
	result.SkipReason = reason
	s.scheduleNext(ctx, log, result, next)
	s.metrics.CycleFinished(metrics.OutcomeSkipped, string(reason))
	log.Debug("overview_cycle_skipped",
		zap.String("reason", string(reason)),
		zap.Duration("next_check_in", next),
	)
	return result
}

// scheduleNext enqueues the routine follow-up check. A failure here is logged rather than
// returned; the sweeper picks up users whose chain was lost.
func (s *OverviewScheduler) scheduleNext(ctx context.Context, log *zap.Logger, result *CycleResult, after time.Duration) {
	result.NextCheckIn = after
	if s.jobs == nil {
		return
	}
	enqueued, err := s.jobs.Schedule(ctx, queue.NewCycleJob(result.UserID, false), after, s.cfg.UniqueWithin)
	if err != nil {
		log.Warn("overview_schedule_next_failed", zap.Duration("run_after", after), logger.ErrorField(err))
		return
	}
	s.metrics.Scheduled(false, enqueued)
	// A deduplicated request means a routine check is already pending
	result.NextScheduled = true
}

// cycleKey identifies the window a cycle covers so retries reuse the same dedup keys
func cycleKey(watermark time.Time) string {
	return watermark.UTC().Format(time.RFC3339Nano)
}

func failureReason(err error) string {
	var (
		detectionErr   *overview.DetectionError
		analysisErr    *overview.AnalysisError
		executionErr   *overview.ExecutionError
		persistenceErr *overview.PersistenceError
	)
	switch {
	case errors.As(err, &detectionErr):
		return "detection"
	case errors.As(err, &analysisErr):
		return "analysis"
	case errors.As(err, &executionErr):
		return "execution"
	case errors.As(err, &persistenceErr):
		return "persistence"
	default:
		return "unknown"
	}
}

// String renders a short summary for logs and the CLI
func (r *CycleResult) String() string {
	if r.State == CycleStateSkipped {
		return fmt.Sprintf("skipped (%s), next check in %s", r.SkipReason, r.NextCheckIn)
	}
	return fmt.Sprintf("%s with %d changes, next check in %s", r.State, r.TotalChanges, r.NextCheckIn)
}
