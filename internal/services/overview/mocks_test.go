package overview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benvon/smart-crm/internal/database"
	"github.com/benvon/smart-crm/internal/delivery"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/benvon/smart-crm/internal/services/ai"
	"github.com/google/uuid"
)

var errStoreDown = errors.New("store unreachable")

type mockChangeStore struct {
	mu      sync.Mutex
	records map[models.EntityKind][]models.ChangeRecord
	errs    map[models.EntityKind]error
	calls   []models.EntityKind
	limits  []int
}

func (m *mockChangeStore) ListChangedSince(ctx context.Context, kind models.EntityKind, userID uuid.UUID, since time.Time, limit int) ([]models.ChangeRecord, error) {
	m.mu.Lock()
	m.calls = append(m.calls, kind)
	m.limits = append(m.limits, limit)
	m.mu.Unlock()

	if err := m.errs[kind]; err != nil {
		return nil, err
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

var _ database.ChangeRepositoryInterface = (*mockChangeStore)(nil)

type mockGateway struct {
	mu       sync.Mutex
	content  string
	err      error
	delay    time.Duration
	tokens   int64
	calls    int
	system   string
	messages []ai.ChatMessage
	opts     ai.CompletionOptions
}

func (m *mockGateway) Complete(ctx context.Context, systemPrompt string, messages []ai.ChatMessage, opts ai.CompletionOptions) (*ai.Completion, error) {
	m.mu.Lock()
	m.calls++
	m.system = systemPrompt
	m.messages = messages
	m.opts = opts
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &ai.Completion{Content: m.content, PromptTokens: m.tokens, CompletionTokens: m.tokens / 4}, nil
}

type mockForecastStore struct {
	summary *models.ForecastSummary
	err     error
}

func (m *mockForecastStore) Summary(ctx context.Context, userID uuid.UUID, now time.Time) (*models.ForecastSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

var _ database.ForecastRepositoryInterface = (*mockForecastStore)(nil)

// mockActionItemStore enforces per-user dedup keys like the SQL store
type mockActionItemStore struct {
	items     []*models.ActionItem
	keys      map[string]bool
	createErr error
	deleteErr error
	deleted   []string
	deleteN   int64
}

func (m *mockActionItemStore) Create(ctx context.Context, item *models.ActionItem) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[item.DedupKey] {
		return database.ErrDuplicate
	}
	m.keys[item.DedupKey] = true
	m.items = append(m.items, item)
	return nil
}

func (m *mockActionItemStore) DeleteMatching(ctx context.Context, userID uuid.UUID, pattern string) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deleted = append(m.deleted, pattern)
	return m.deleteN, nil
}

var _ database.ActionItemRepositoryInterface = (*mockActionItemStore)(nil)

type mockNotificationStore struct {
	created   []*models.Notification
	byKey     map[string]*models.Notification
	delivered map[uuid.UUID]bool
	err       error
}

func (m *mockNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if m.err != nil {
		return m.err
	}
	if m.byKey == nil {
		m.byKey = map[string]*models.Notification{}
	}
	if _, ok := m.byKey[n.DedupKey]; ok {
		return database.ErrDuplicate
	}
	n.ID = uuid.New()
	m.byKey[n.DedupKey] = n
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationStore) GetUndelivered(ctx context.Context, userID uuid.UUID, dedupKey string) (*models.Notification, error) {
	n, ok := m.byKey[dedupKey]
	if !ok || m.delivered[n.ID] {
		return nil, database.ErrNotFound
	}
	return n, nil
}

func (m *mockNotificationStore) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	if m.delivered == nil {
		m.delivered = map[uuid.UUID]bool{}
	}
	m.delivered[id] = true
	return nil
}

var _ database.NotificationRepositoryInterface = (*mockNotificationStore)(nil)

type pushedEvent struct {
	UserID  uuid.UUID
	Event   string
	Payload any
}

type recordingSink struct {
	mu     sync.Mutex
	events []pushedEvent
	err    error
}

func (s *recordingSink) Push(ctx context.Context, userID uuid.UUID, event string, payload any) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, pushedEvent{UserID: userID, Event: event, Payload: payload})
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

var _ delivery.Sink = (*recordingSink)(nil)
