package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/smart-crm/internal/database"
	"github.com/benvon/smart-crm/internal/logger"
	"github.com/benvon/smart-crm/internal/queue"
	"go.uber.org/zap"
)

const (
	// DefaultSweepInterval is how often the sweeper looks for stalled users
	DefaultSweepInterval = 10 * time.Minute
	// DefaultSweepGrace is how long past its due time a user may go without a cycle
	DefaultSweepGrace = 10 * time.Minute
	// DefaultSweepBatch bounds how many users one sweep reschedules
	DefaultSweepBatch = 500
)

// SweeperConfig tunes the sweeper
type SweeperConfig struct {
	Interval     time.Duration
	Grace        time.Duration
	BatchSize    int
	UniqueWithin time.Duration
}

// Sweeper reschedules enabled users whose routine chain was lost, e.g. after a job was dead-lettered
type Sweeper struct {
	states database.WorkerStateRepositoryInterface
	jobs   queue.Scheduler
	cfg    SweeperConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewSweeper creates a new sweeper
func NewSweeper(states database.WorkerStateRepositoryInterface, jobs queue.Scheduler, cfg SweeperConfig, log *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultSweepGrace
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweepBatch
	}
	if cfg.UniqueWithin <= 0 {
		cfg.UniqueWithin = queue.DefaultUniqueWithin
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		states: states,
		jobs:   jobs,
		cfg:    cfg,
		now:    time.Now,
		logger: log,
	}
}

// WithClock overrides the sweeper clock
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Sweep schedules an immediate routine cycle for every overdue user and returns how many were enqueued.
// Users that still have a pending routine job are deduplicated by the scheduler.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	states, err := s.states.ListStale(ctx, now.Add(-s.cfg.Grace), s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale worker states: %w", err)
	}

	enqueued := 0
	for _, state := range states {
		if state.NextRunAt().Add(s.cfg.Grace).After(now) {
			continue
		}
		ok, err := s.jobs.Schedule(ctx, queue.NewCycleJob(state.UserID, false), 0, s.cfg.UniqueWithin)
		if err != nil {
			s.logger.Warn("overview_sweep_schedule_failed",
				zap.String("user_id", logger.SanitizeUserID(state.UserID.String())),
				logger.ErrorField(err),
			)
			continue
		}
		if ok {
			enqueued++
		}
	}

	if enqueued > 0 {
		s.logger.Info("overview_sweep_rescheduled",
			zap.Int("candidates", len(states)),
			zap.Int("enqueued", enqueued),
		)
	}
	return enqueued, nil
}

// Start runs Sweep every interval until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warn("overview_sweep_failed", logger.ErrorField(err))
			}
		}
	}
}
