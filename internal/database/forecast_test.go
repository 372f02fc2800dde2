package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForecastRepository_Summary(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	repo := NewForecastRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	lastMonth := testNow.AddDate(0, -1, 0)

	insertDeal(t, db, userID, "Open A", 1000, "proposal", 50, lastMonth, testNow, false)
	insertDeal(t, db, userID, "Open B", 3000, "negotiation", 10, lastMonth, testNow, false)
	insertDeal(t, db, userID, "Won now", 700, "won", 100, lastMonth, testNow.Add(-time.Hour), false)
	insertDeal(t, db, userID, "Won earlier", 900, "won", 100, lastMonth, lastMonth, false)
	insertDeal(t, db, userID, "Lost now", 200, "lost", 0, lastMonth, testNow.Add(-time.Hour), false)
	insertDeal(t, db, userID, "Deleted", 5000, "proposal", 90, lastMonth, testNow, true)

	summary, err := repo.Summary(ctx, userID, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.OpenDeals)
	assert.InDelta(t, 4000, summary.PipelineValue, 0.001)
	assert.InDelta(t, 800, summary.WeightedValue, 0.001)
	assert.InDelta(t, 700, summary.WonThisMonth, 0.001)
	assert.InDelta(t, 200, summary.LostThisMonth, 0.001)
}

func TestForecastRepository_SummaryEmpty(t *testing.T) {
	t.Parallel()

	summary, err := NewForecastRepository(openTestDB(t)).Summary(context.Background(), uuid.New(), testNow)
	require.NoError(t, err)
	assert.Zero(t, summary.OpenDeals)
	assert.Zero(t, summary.PipelineValue)
}
