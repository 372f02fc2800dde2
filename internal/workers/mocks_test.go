package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benvon/smart-crm/internal/database"
	"github.com/benvon/smart-crm/internal/delivery"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/benvon/smart-crm/internal/queue"
	"github.com/benvon/smart-crm/internal/services/ai"
	"github.com/google/uuid"
)

var errStoreDown = errors.New("store unreachable")

// mockStateRepo is an in-memory WorkerStateRepositoryInterface with the same watermark guard as the SQL store
type mockStateRepo struct {
	mu        sync.Mutex
	states    map[uuid.UUID]*models.WorkerState
	getErr    error
	createErr error
	upsertErr error
	markErr   error
	marks     []time.Time
	staleErr  error
}

func newMockStateRepo(states ...*models.WorkerState) *mockStateRepo {
	m := &mockStateRepo{states: make(map[uuid.UUID]*models.WorkerState)}
	for _, s := range states {
		m.states[s.UserID] = cloneState(s)
	}
	return m
}

func cloneState(s *models.WorkerState) *models.WorkerState {
	c := *s
	c.ObservedKinds = append([]models.EntityKind(nil), s.ObservedKinds...)
	c.Metadata = models.WorkerMetadata{}.Merge(s.Metadata)
	return &c
}

func (m *mockStateRepo) Get(ctx context.Context, userID uuid.UUID) (*models.WorkerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.states[userID]
	if !ok {
		return nil, fmt.Errorf("worker state %s: %w", userID, database.ErrNotFound)
	}
	return cloneState(s), nil
}

func (m *mockStateRepo) CreateIfAbsent(ctx context.Context, state *models.WorkerState) (*models.WorkerState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, false, m.createErr
	}
	if s, ok := m.states[state.UserID]; ok {
		return cloneState(s), false, nil
	}
	m.states[state.UserID] = cloneState(state)
	return cloneState(state), true, nil
}

func (m *mockStateRepo) Upsert(ctx context.Context, state *models.WorkerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	next := cloneState(state)
	if existing, ok := m.states[state.UserID]; ok {
		next.LastRunAt = existing.LastRunAt
		next.Metadata = existing.Metadata
		next.CreatedAt = existing.CreatedAt
	}
	m.states[state.UserID] = next
	return nil
}

func (m *mockStateRepo) MarkRun(ctx context.Context, userID uuid.UUID, runAt time.Time, metadata models.WorkerMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	s, ok := m.states[userID]
	if !ok || s.LastRunAt.After(runAt) {
		return fmt.Errorf("worker state %s: %w", userID, database.ErrWatermarkConflict)
	}
	s.LastRunAt = runAt
	s.Metadata = metadata
	s.UpdatedAt = runAt
	m.marks = append(m.marks, runAt)
	return nil
}

func (m *mockStateRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]*models.WorkerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleErr != nil {
		return nil, m.staleErr
	}
	var out []*models.WorkerState
	for _, s := range m.states {
		if s.Enabled && s.LastRunAt.Before(before) {
			out = append(out, cloneState(s))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStateRepo) state(userID uuid.UUID) *models.WorkerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[userID]; ok {
		return cloneState(s)
	}
	return nil
}

func (m *mockStateRepo) markCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marks)
}

var _ database.WorkerStateRepositoryInterface = (*mockStateRepo)(nil)

// mockChangeStore serves generated deals; total may exceed the detector's per-kind limit
type mockChangeStore struct {
	mu      sync.Mutex
	records map[models.EntityKind][]models.ChangeRecord
	err     error
	calls   int
}

func (m *mockChangeStore) ListChangedSince(ctx context.Context, kind models.EntityKind, userID uuid.UUID, since time.Time, limit int) ([]models.ChangeRecord, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.ChangeRecord
	for _, r := range m.records[kind] {
		if r.UpdatedAt.After(since) {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockChangeStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockGateway struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
}

func (m *mockGateway) Complete(ctx context.Context, systemPrompt string, messages []ai.ChatMessage, opts ai.CompletionOptions) (*ai.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &ai.Completion{Content: m.content}, nil
}

func (m *mockGateway) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type stubForecast struct{}

func (stubForecast) Summary(ctx context.Context, userID uuid.UUID, now time.Time) (*models.ForecastSummary, error) {
	return &models.ForecastSummary{OpenDeals: 3, PipelineValue: 30000}, nil
}

// memActionItems mimics the action item store, including the per-user dedup key constraint
type memActionItems struct {
	mu    sync.Mutex
	items []*models.ActionItem
	err   error
}

func (m *memActionItems) Create(ctx context.Context, item *models.ActionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.items {
		if existing.UserID == item.UserID && existing.DedupKey == item.DedupKey {
			return database.ErrDuplicate
		}
	}
	item.ID = uuid.New()
	m.items = append(m.items, item)
	return nil
}

func (m *memActionItems) DeleteMatching(ctx context.Context, userID uuid.UUID, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var kept []*models.ActionItem
	var n int64
	for _, item := range m.items {
		if item.UserID == userID && !item.Dismissed && strings.Contains(strings.ToLower(item.Title), strings.ToLower(pattern)) {
			n++
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept
	return n, nil
}

func (m *memActionItems) titles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item.Title)
	}
	return out
}

type memNotifications struct {
	mu    sync.Mutex
	items []*models.Notification
}

func (m *memNotifications) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.UserID == n.UserID && existing.DedupKey == n.DedupKey {
			return database.ErrDuplicate
		}
	}
	n.ID = uuid.New()
	m.items = append(m.items, n)
	return nil
}

func (m *memNotifications) GetUndelivered(ctx context.Context, userID uuid.UUID, dedupKey string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.UserID == userID && existing.DedupKey == dedupKey && existing.DeliveredAt == nil {
			return existing, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memNotifications) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.ID == id && existing.DeliveredAt == nil {
			existing.DeliveredAt = &at
		}
	}
	return nil
}

type sinkEvent struct {
	userID uuid.UUID
	event  string
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordingSink) Push(ctx context.Context, userID uuid.UUID, event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{userID: userID, event: event})
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.event == event {
			n++
		}
	}
	return n
}

var _ delivery.Sink = (*recordingSink)(nil)

type scheduleCall struct {
	job          *queue.Job
	runAfter     time.Duration
	uniqueWithin time.Duration
}

// mockScheduler records schedule requests; it never deduplicates unless told to
type mockScheduler struct {
	mu       sync.Mutex
	calls    []scheduleCall
	released []uuid.UUID
	dedup    bool
	err      error
}

func (m *mockScheduler) Schedule(ctx context.Context, job *queue.Job, runAfter, uniqueWithin time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	m.calls = append(m.calls, scheduleCall{job: job, runAfter: runAfter, uniqueWithin: uniqueWithin})
	return !m.dedup, nil
}

func (m *mockScheduler) Release(ctx context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, job.ID)
	return nil
}

func (m *mockScheduler) scheduled() []scheduleCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]scheduleCall(nil), m.calls...)
}

var _ queue.Scheduler = (*mockScheduler)(nil)

type mockJobQueue struct {
	mu         sync.Mutex
	enqueued   []*queue.Job
	enqueueErr error
}

func (m *mockJobQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockJobQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (m *mockJobQueue) Close() error { return nil }

func (m *mockJobQueue) HealthCheck(ctx context.Context) error { return nil }

var _ queue.JobQueue = (*mockJobQueue)(nil)

type mockMessage struct {
	job      *queue.Job
	acked    bool
	nacked   bool
	requeued bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeued = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job {
	return m.job
}

var _ queue.MessageInterface = (*mockMessage)(nil)

// fakeRunner returns canned results for the processor tests
type fakeRunner struct {
	result *CycleResult
	err    error
	users  []uuid.UUID
	ctxJob string
}

func (f *fakeRunner) RunCycle(ctx context.Context, userID uuid.UUID) (*CycleResult, error) {
	f.users = append(f.users, userID)
	f.ctxJob = ai.ExtractJobID(ctx)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &CycleResult{UserID: userID, State: CycleStateIdle}, nil
}
