package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/google/uuid"
)

// ActionItemRepository handles action item create/delete operations
type ActionItemRepository struct {
	db *DB
}

// NewActionItemRepository creates a new action item repository
func NewActionItemRepository(db *DB) *ActionItemRepository {
	return &ActionItemRepository{db: db}
}

// Create inserts a new action item. An item whose dedup key already exists for the
// user is not inserted again and ErrDuplicate is returned.
func (r *ActionItemRepository) Create(ctx context.Context, item *models.ActionItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.DedupKey == "" {
		item.DedupKey = item.ID.String()
	}

	query, args, err := r.db.Builder().
		Insert("action_items").
		Columns("id", "user_id", "icon", "title", "category", "dismissed", "dedup_key", "created_at").
		Values(item.ID, item.UserID, item.Icon, item.Title, item.Category, false, item.DedupKey, item.CreatedAt.UTC()).
		Suffix("ON CONFLICT (user_id, dedup_key) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build action item insert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create action item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("action item %q: %w", item.Title, ErrDuplicate)
	}
	return nil
}

// DeleteMatching deletes the user's non-dismissed action items whose title contains
// pattern, case-insensitively, and returns the number of rows removed
func (r *ActionItemRepository) DeleteMatching(ctx context.Context, userID uuid.UUID, pattern string) (int64, error) {
	query, args, err := r.db.Builder().
		Delete("action_items").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"dismissed": false}).
		Where(`LOWER(title) LIKE LOWER(?) ESCAPE '\'`, "%"+escapeLike(pattern)+"%").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build action item delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete action items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// ListActive returns the user's non-dismissed action items, newest first
func (r *ActionItemRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]*models.ActionItem, error) {
	query, args, err := r.db.Builder().
		Select("id", "user_id", "icon", "title", "category", "dismissed", "dedup_key", "created_at").
		From("action_items").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"dismissed": false}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build action item query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list action items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*models.ActionItem
	for rows.Next() {
		item := &models.ActionItem{}
		if err := rows.Scan(&item.ID, &item.UserID, &item.Icon, &item.Title, &item.Category,
			&item.Dismissed, &item.DedupKey, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action items: %w", err)
	}
	return items, nil
}
