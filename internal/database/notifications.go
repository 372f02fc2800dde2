package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/google/uuid"
)

// NotificationRepository persists notifications created by the overview worker
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification; a repeated dedup key yields ErrDuplicate
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.DedupKey == "" {
		n.DedupKey = n.ID.String()
	}

	query, args, err := r.db.Builder().
		Insert("notifications").
		Columns("id", "user_id", "kind", "priority", "title", "message", "read", "dedup_key", "created_at").
		Values(n.ID, n.UserID, n.Kind, n.Priority, n.Title, n.Message, false, n.DedupKey, n.CreatedAt.UTC()).
		Suffix("ON CONFLICT (user_id, dedup_key) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build notification insert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification %q: %w", n.Title, ErrDuplicate)
	}
	return nil
}

// GetUndelivered returns the notification stored under dedupKey if it was never delivered.
// A missing or already delivered notification yields ErrNotFound.
func (r *NotificationRepository) GetUndelivered(ctx context.Context, userID uuid.UUID, dedupKey string) (*models.Notification, error) {
	query, args, err := r.db.Builder().
		Select("id", "user_id", "kind", "priority", "title", "message", "read", "dedup_key", "created_at").
		From("notifications").
		Where(sq.Eq{"user_id": userID, "dedup_key": dedupKey, "delivered_at": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build notification query: %w", err)
	}

	n := &models.Notification{}
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&n.ID, &n.UserID, &n.Kind, &n.Priority, &n.Title, &n.Message, &n.Read, &n.DedupKey, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("undelivered notification %s: %w", dedupKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// MarkDelivered records that the notification reached the delivery sink
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	query, args, err := r.db.Builder().
		Update("notifications").
		Set("delivered_at", at.UTC()).
		Where(sq.Eq{"id": id, "delivered_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build notification update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}
	return nil
}
