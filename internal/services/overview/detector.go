package overview

import (
	"context"
	"time"

	"github.com/benvon/smart-crm/internal/database"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MaxChangesPerKind caps how many records one detection pass reads per entity kind
const MaxChangesPerKind = 100

// Detector finds entities modified after a watermark
type Detector struct {
	store database.ChangeRepositoryInterface
	limit int
	now   func() time.Time
}

// NewDetector creates a detector over the given entity store
func NewDetector(store database.ChangeRepositoryInterface) *Detector {
	return &Detector{
		store: store,
		limit: MaxChangesPerKind,
		now:   time.Now,
	}
}

// WithClock overrides the clock used to classify records as new or updated
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Detect queries every observed kind concurrently and returns the combined change set.
// Kinds outside observedKinds contribute empty lists. Any store failure aborts with a DetectionError.
func (d *Detector) Detect(ctx context.Context, userID uuid.UUID, watermark time.Time, observedKinds []models.EntityKind) (*models.ChangeSet, error) {
	observed := make(map[models.EntityKind]bool, len(observedKinds))
	for _, kind := range observedKinds {
		observed[kind] = true
	}

	results := make([][]models.ChangeRecord, len(models.AllEntityKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range models.AllEntityKinds {
		if !observed[kind] {
			continue
		}
		g.Go(func() error {
			records, err := d.store.ListChangedSince(gctx, kind, userID, watermark, d.limit)
			if err != nil {
				return &DetectionError{Kind: kind, Err: err}
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := d.now()
	for _, records := range results {
		for j := range records {
			records[j].ChangeType = models.ClassifyChange(records[j].InsertedAt, now)
		}
	}

	return models.NewChangeSet(results[0], results[1], results[2]), nil
}
