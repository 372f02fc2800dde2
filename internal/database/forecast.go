package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/google/uuid"
)

// ForecastRepository computes aggregate pipeline figures from the deals table
type ForecastRepository struct {
	db *DB
}

// NewForecastRepository creates a new forecast repository
func NewForecastRepository(db *DB) *ForecastRepository {
	return &ForecastRepository{db: db}
}

// Summary returns open pipeline totals plus won/lost value since the start of now's month
func (r *ForecastRepository) Summary(ctx context.Context, userID uuid.UUID, now time.Time) (*models.ForecastSummary, error) {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	query, args, err := r.db.Builder().
		Select(
			"COALESCE(SUM(CASE WHEN stage NOT IN ('won', 'lost') THEN 1 ELSE 0 END), 0)",
			"COALESCE(SUM(CASE WHEN stage NOT IN ('won', 'lost') THEN value ELSE 0 END), 0)",
			"COALESCE(SUM(CASE WHEN stage NOT IN ('won', 'lost') THEN value * probability / 100.0 ELSE 0 END), 0)",
		).
		Column(sq.Expr("COALESCE(SUM(CASE WHEN stage = 'won' AND updated_at >= ? THEN value ELSE 0 END), 0)", monthStart)).
		Column(sq.Expr("COALESCE(SUM(CASE WHEN stage = 'lost' AND updated_at >= ? THEN value ELSE 0 END), 0)", monthStart)).
		From("deals").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"deleted_at": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build forecast query: %w", err)
	}

	summary := &models.ForecastSummary{}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.OpenDeals,
		&summary.PipelineValue,
		&summary.WeightedValue,
		&summary.WonThisMonth,
		&summary.LostThisMonth,
	); err != nil {
		return nil, fmt.Errorf("failed to compute forecast summary: %w", err)
	}
	return summary, nil
}
