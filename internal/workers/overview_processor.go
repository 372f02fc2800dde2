package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/smart-crm/internal/logger"
	"github.com/benvon/smart-crm/internal/metrics"
	"github.com/benvon/smart-crm/internal/queue"
	"github.com/benvon/smart-crm/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CycleRunner runs one overview cycle
type CycleRunner interface {
	RunCycle(ctx context.Context, userID uuid.UUID) (*CycleResult, error)
}

// JobProcessor consumes overview cycle jobs and applies the retry policy
type JobProcessor struct {
	runner   CycleRunner
	jobQueue queue.JobQueue
	jobs     queue.Scheduler
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewJobProcessor creates a processor. jobQueue receives retries; jobs releases routine dedup keys.
func NewJobProcessor(runner CycleRunner, jobQueue queue.JobQueue, jobs queue.Scheduler, m *metrics.Metrics, log *zap.Logger) *JobProcessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &JobProcessor{
		runner:   runner,
		jobQueue: jobQueue,
		jobs:     jobs,
		metrics:  m,
		now:      time.Now,
		logger:   log,
	}
}

// WithClock overrides the processor clock
func (p *JobProcessor) WithClock(now func() time.Time) *JobProcessor {
	p.now = now
	return p
}

// ProcessJob processes a job based on its type
func (p *JobProcessor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	now := p.now()

	if job.Type != queue.JobTypeOverviewCycle {
		p.deadLetter(msg)
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	if job.IsExpired(now) {
		p.deadLetter(msg)
		return fmt.Errorf("job %s expired at %v", job.ID, job.NotAfter)
	}

	// Early delivery, e.g. a broker without delayed delivery: put it back with its delay intact
	if !job.ShouldProcess(now) {
		return p.requeue(ctx, msg, job, "not_due")
	}

	log := logger.ForCycle(p.logger, job.UserID, job.ID)

	if !job.Manual && p.jobs != nil {
		if err := p.jobs.Release(ctx, job); err != nil {
			log.Warn("overview_schedule_key_release_failed", logger.ErrorField(err))
		}
	}

	cycleCtx := ai.WithCallContext(ctx, job.UserID, job.ID)
	result, err := p.runner.RunCycle(cycleCtx, job.UserID)
	if err != nil {
		return p.handleJobError(ctx, log, msg, job, err)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	p.metrics.JobDisposition(metrics.JobAcked)
	log.Debug("overview_job_processed",
		zap.String("state", string(result.State)),
		zap.String("skip_reason", string(result.SkipReason)),
		zap.Bool("manual", job.Manual),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

// handleJobError re-enqueues the job for another attempt with a delay chosen from the error,
// or dead-letters it once attempts are exhausted
func (p *JobProcessor) handleJobError(ctx context.Context, log *zap.Logger, msg queue.MessageInterface, job *queue.Job, err error) error {
	if !job.CanRetry() {
		log.Warn("overview_job_attempts_exhausted",
			zap.Int("attempt", job.Attempt),
			zap.Int("max_attempts", job.MaxAttempts),
			logger.ErrorField(err),
		)
		p.deadLetter(msg)
		return fmt.Errorf("job failed (max attempts): %w", err)
	}

	delay := ai.GetRetryDelay(err, job.Attempt-1)
	retry := job.Retry(p.now().Add(delay))

	if enqueueErr := p.jobQueue.Enqueue(ctx, retry); enqueueErr != nil {
		log.Warn("overview_job_retry_enqueue_failed", logger.ErrorField(enqueueErr))
		// Let the broker redeliver the original
		if nackErr := msg.Nack(true); nackErr != nil {
			log.Warn("overview_job_nack_failed", logger.ErrorField(nackErr))
		}
		return fmt.Errorf("job failed, re-enqueue failed: %w", enqueueErr)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		log.Warn("overview_job_ack_failed", logger.ErrorField(ackErr))
	}
	p.metrics.JobDisposition(metrics.JobRetried)

	log.Info("overview_job_retry_scheduled",
		zap.Int("next_attempt", retry.Attempt),
		zap.Duration("delay", delay),
		zap.Bool("rate_limited", ai.IsRateLimitError(err)),
		zap.Bool("quota_exceeded", ai.IsQuotaError(err)),
		logger.ErrorField(err),
	)
	return fmt.Errorf("job failed (will retry): %w", err)
}

func (p *JobProcessor) requeue(ctx context.Context, msg queue.MessageInterface, job *queue.Job, reason string) error {
	if err := p.jobQueue.Enqueue(ctx, job); err != nil {
		if nackErr := msg.Nack(true); nackErr != nil {
			p.logger.Warn("overview_job_nack_failed", logger.ErrorField(nackErr))
		}
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack requeued job: %w", err)
	}
	p.metrics.JobDisposition(metrics.JobRescheduled)
	p.logger.Debug("overview_job_requeued", zap.String("job_id", job.ID.String()), zap.String("reason", reason))
	return nil
}

func (p *JobProcessor) deadLetter(msg queue.MessageInterface) {
	if err := msg.Nack(false); err != nil {
		p.logger.Warn("overview_job_nack_failed", logger.ErrorField(err))
	}
	p.metrics.JobDisposition(metrics.JobDeadLetter)
}

// Run consumes from the queue until ctx is cancelled or the delivery channel closes
func (p *JobProcessor) Run(ctx context.Context, prefetch int) error {
	msgChan, errChan, err := p.jobQueue.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			p.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgChan:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			if err := p.ProcessJob(ctx, msg); err != nil {
				p.logger.Warn("overview_job_failed",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
					logger.ErrorField(err),
				)
			}
		}
	}
}
