package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/google/uuid"
)

// changeSource describes how one entity table projects into change records
type changeSource struct {
	table       string
	titleColumn string
	fields      []string
}

var changeSources = map[models.EntityKind]changeSource{
	models.EntityKindContacts: {table: "contacts", titleColumn: "name", fields: []string{"company", "email", "status"}},
	models.EntityKindDeals:    {table: "deals", titleColumn: "title", fields: []string{"value", "stage", "probability", "close_date"}},
	models.EntityKindEvents:   {table: "events", titleColumn: "title", fields: []string{"starts_at", "location", "status"}},
}

// columns lists the selected columns in scan order
func (s changeSource) columns() []string {
	return append([]string{"id", s.titleColumn, "inserted_at", "updated_at"}, s.fields...)
}

// ChangeRepository reads recently modified entities for change detection
type ChangeRepository struct {
	db *DB
}

// NewChangeRepository creates a new change repository
func NewChangeRepository(db *DB) *ChangeRepository {
	return &ChangeRepository{db: db}
}

// ListChangedSince returns the user's records of kind updated strictly after since,
// excluding soft-deleted rows, most recently updated first, at most limit rows.
// ChangeType is left empty for the caller to classify.
func (r *ChangeRepository) ListChangedSince(ctx context.Context, kind models.EntityKind, userID uuid.UUID, since time.Time, limit int) ([]models.ChangeRecord, error) {
	src, ok := changeSources[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	query, args, err := r.db.Builder().
		Select(src.columns()...).
		From(src.table).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Gt{"updated_at": since.UTC()}).
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("updated_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s change query: %w", kind, err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]models.ChangeRecord, 0)
	for rows.Next() {
		rec := models.ChangeRecord{Kind: kind}
		var title sql.NullString
		values := make([]sql.NullString, len(src.fields))

		dest := []any{&rec.ID, &title, &rec.InsertedAt, &rec.UpdatedAt}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan changed %s: %w", kind, err)
		}

		rec.Title = title.String
		for i, name := range src.fields {
			if values[i].Valid && values[i].String != "" {
				rec.Fields = append(rec.Fields, models.Field{Name: name, Value: values[i].String})
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changed %s: %w", kind, err)
	}
	return records, nil
}
