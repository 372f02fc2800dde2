package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeOverviewCycle runs one overview cycle for a user
	JobTypeOverviewCycle JobType = "overview_cycle"
)

// DefaultMaxAttempts bounds how often one enqueued cycle is tried
const DefaultMaxAttempts = 3

// Job represents a job in the queue
type Job struct {
	ID          uuid.UUID      `json:"id"`
	Type        JobType        `json:"type"`
	UserID      uuid.UUID      `json:"user_id"`
	Manual      bool           `json:"manual,omitempty"`     // Enqueued by run-now rather than the routine chain
	NotBefore   *time.Time     `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter    *time.Time     `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
}

// NewJob creates a new job on its first attempt
func NewJob(jobType JobType, userID uuid.UUID) *Job {
	return &Job{
		ID:          uuid.New(),
		Type:        jobType,
		UserID:      userID,
		Metadata:    make(map[string]any),
		CreatedAt:   time.Now().UTC(),
		Attempt:     1,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// NewCycleJob creates an overview cycle job for userID
func NewCycleJob(userID uuid.UUID, manual bool) *Job {
	job := NewJob(JobTypeOverviewCycle, userID)
	job.Manual = manual
	return job
}

// ShouldProcess checks if the job should be processed at now
func (j *Job) ShouldProcess(now time.Time) bool {
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	return !j.IsExpired(now)
}

// IsExpired checks if the job has passed its NotAfter deadline
func (j *Job) IsExpired(now time.Time) bool {
	return j.NotAfter != nil && now.After(*j.NotAfter)
}

// CanRetry reports whether another attempt is allowed after this one
func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}

// Retry returns a copy of the job for its next attempt, due at notBefore
func (j *Job) Retry(notBefore time.Time) *Job {
	next := *j
	next.NotBefore = &notBefore
	next.Attempt = j.Attempt + 1
	return &next
}
