package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultUniqueWithin is the dedup window added on top of a job's delay
const DefaultUniqueWithin = 60 * time.Second

// Scheduler enqueues jobs with a per-user dedup window
type Scheduler interface {
	// Schedule enqueues job to run after runAfter unless an equivalent job for the same user
	// was scheduled within runAfter+uniqueWithin. It reports whether the job was enqueued.
	Schedule(ctx context.Context, job *Job, runAfter, uniqueWithin time.Duration) (bool, error)
	// Release frees the dedup key held by job so the next routine job can be scheduled
	Release(ctx context.Context, job *Job) error
}

// KeyStore holds dedup keys with an expiry
type KeyStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// UniqueKey returns the dedup key for job. Run-now jobs use their own key so that a
// manual trigger neither blocks nor is blocked by the routine chain for longer than its window.
func UniqueKey(job *Job) string {
	if job.Manual {
		return "overview:manual:" + job.UserID.String()
	}
	return "overview:schedule:" + job.UserID.String()
}

// UniqueScheduler implements Scheduler over a JobQueue and a KeyStore
type UniqueScheduler struct {
	queue  JobQueue
	keys   KeyStore
	now    func() time.Time
	logger *zap.Logger
}

// NewUniqueScheduler creates a scheduler
func NewUniqueScheduler(queue JobQueue, keys KeyStore, logger *zap.Logger) *UniqueScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UniqueScheduler{
		queue:  queue,
		keys:   keys,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock overrides the clock used to compute NotBefore
func (s *UniqueScheduler) WithClock(now func() time.Time) *UniqueScheduler {
	s.now = now
	return s
}

// Schedule implements Scheduler
func (s *UniqueScheduler) Schedule(ctx context.Context, job *Job, runAfter, uniqueWithin time.Duration) (bool, error) {
	if job == nil {
		return false, errors.New("job is required")
	}
	if runAfter < 0 {
		runAfter = 0
	}
	if uniqueWithin <= 0 {
		uniqueWithin = DefaultUniqueWithin
	}

	key := UniqueKey(job)
	claimed, err := s.keys.SetNX(ctx, key, job.ID.String(), runAfter+uniqueWithin)
	if err != nil {
		return false, fmt.Errorf("failed to claim schedule key: %w", err)
	}
	if !claimed {
		s.logger.Debug("overview_job_deduplicated",
			zap.String("key", key),
			zap.Bool("manual", job.Manual),
		)
		return false, nil
	}

	if runAfter > 0 {
		notBefore := s.now().Add(runAfter)
		job.NotBefore = &notBefore
	} else {
		job.NotBefore = nil
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		if _, relErr := s.keys.CompareAndDelete(ctx, key, job.ID.String()); relErr != nil {
			s.logger.Warn("overview_schedule_key_release_failed", zap.String("key", key), zap.Error(relErr))
		}
		return false, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return true, nil
}

// Release implements Scheduler. Only the job that claimed the key can free it.
func (s *UniqueScheduler) Release(ctx context.Context, job *Job) error {
	if _, err := s.keys.CompareAndDelete(ctx, UniqueKey(job), job.ID.String()); err != nil {
		return fmt.Errorf("failed to release schedule key: %w", err)
	}
	return nil
}

var _ Scheduler = (*UniqueScheduler)(nil)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1]
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisKeyStore implements KeyStore with SET NX PX and a compare-and-delete script
type RedisKeyStore struct {
	client redis.Cmdable
}

// NewRedisKeyStore creates a key store over client
func NewRedisKeyStore(client redis.Cmdable) *RedisKeyStore {
	return &RedisKeyStore{client: client}
}

// SetNX implements KeyStore
func (r *RedisKeyStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX %s: %w", key, err)
	}
	return ok, nil
}

// CompareAndDelete implements KeyStore
func (r *RedisKeyStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.client, []string{key}, value).Int()
	if err != nil {
		return false, fmt.Errorf("redis release %s: %w", key, err)
	}
	return n == 1, nil
}

var _ KeyStore = (*RedisKeyStore)(nil)

// NewRedisClient parses url, connects and pings
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
