package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/google/uuid"
)

var workerStateColumns = []string{
	"user_id", "last_run_at", "cooldown_period_seconds", "observed_kinds",
	"enabled", "metadata", "created_at", "updated_at",
}

// WorkerStateRepository handles overview worker state operations
type WorkerStateRepository struct {
	db *DB
}

// NewWorkerStateRepository creates a new worker state repository
func NewWorkerStateRepository(db *DB) *WorkerStateRepository {
	return &WorkerStateRepository{db: db}
}

// Get returns the state for userID or ErrNotFound
func (r *WorkerStateRepository) Get(ctx context.Context, userID uuid.UUID) (*models.WorkerState, error) {
	query, args, err := r.db.Builder().
		Select(workerStateColumns...).
		From("worker_states").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build worker state query: %w", err)
	}

	state, err := scanWorkerState(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("worker state %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worker state: %w", err)
	}
	return state, nil
}

// CreateIfAbsent inserts state unless one already exists for the user.
// It returns the stored state and whether this call created it.
func (r *WorkerStateRepository) CreateIfAbsent(ctx context.Context, state *models.WorkerState) (*models.WorkerState, bool, error) {
	values, err := workerStateValues(state)
	if err != nil {
		return nil, false, err
	}

	query, args, err := r.db.Builder().
		Insert("worker_states").
		Columns(workerStateColumns...).
		Values(values...).
		Suffix("ON CONFLICT (user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("failed to build worker state insert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create worker state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return state, true, nil
	}

	existing, err := r.Get(ctx, state.UserID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Upsert creates the state or replaces its configuration.
// An existing row keeps its last_run_at and metadata: both belong to MarkRun, and a
// configuration change read before a concurrent run must not roll them back.
func (r *WorkerStateRepository) Upsert(ctx context.Context, state *models.WorkerState) error {
	values, err := workerStateValues(state)
	if err != nil {
		return err
	}

	query, args, err := r.db.Builder().
		Insert("worker_states").
		Columns(workerStateColumns...).
		Values(values...).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			cooldown_period_seconds = excluded.cooldown_period_seconds,
			observed_kinds = excluded.observed_kinds,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build worker state upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert worker state: %w", err)
	}
	return nil
}

// MarkRun advances the watermark to runAt and replaces metadata.
// The update is refused with ErrWatermarkConflict if it would move last_run_at backwards.
func (r *WorkerStateRepository) MarkRun(ctx context.Context, userID uuid.UUID, runAt time.Time, metadata models.WorkerMetadata) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	runAt = runAt.UTC()
	query, args, err := r.db.Builder().
		Update("worker_states").
		Set("last_run_at", runAt).
		Set("metadata", string(metadataJSON)).
		Set("updated_at", runAt).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.LtOrEq{"last_run_at": runAt}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build mark run update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("worker state %s: %w", userID, ErrWatermarkConflict)
	}
	return nil
}

// ListStale returns enabled states whose watermark is older than before, oldest first
func (r *WorkerStateRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*models.WorkerState, error) {
	query, args, err := r.db.Builder().
		Select(workerStateColumns...).
		From("worker_states").
		Where(sq.Eq{"enabled": true}).
		Where(sq.Lt{"last_run_at": before.UTC()}).
		OrderBy("last_run_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build stale worker state query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale worker states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []*models.WorkerState
	for rows.Next() {
		state, err := scanWorkerState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker state: %w", err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating worker states: %w", err)
	}
	return states, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkerState(row rowScanner) (*models.WorkerState, error) {
	state := &models.WorkerState{}
	var kindsJSON, metadataJSON []byte

	if err := row.Scan(
		&state.UserID,
		&state.LastRunAt,
		&state.CooldownPeriodSeconds,
		&kindsJSON,
		&state.Enabled,
		&metadataJSON,
		&state.CreatedAt,
		&state.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(kindsJSON, &state.ObservedKinds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal observed kinds: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &state.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if state.Metadata == nil {
		state.Metadata = models.WorkerMetadata{}
	}
	return state, nil
}

func workerStateValues(state *models.WorkerState) ([]any, error) {
	kinds := state.ObservedKinds
	if kinds == nil {
		kinds = []models.EntityKind{}
	}
	kindsJSON, err := json.Marshal(kinds)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal observed kinds: %w", err)
	}
	metadata := state.Metadata
	if metadata == nil {
		metadata = models.WorkerMetadata{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return []any{
		state.UserID,
		state.LastRunAt.UTC(),
		state.CooldownPeriodSeconds,
		string(kindsJSON),
		state.Enabled,
		string(metadataJSON),
		state.CreatedAt.UTC(),
		state.UpdatedAt.UTC(),
	}, nil
}
