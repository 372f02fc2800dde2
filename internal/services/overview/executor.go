package overview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/benvon/smart-crm/internal/database"
	"github.com/benvon/smart-crm/internal/delivery"
	"github.com/benvon/smart-crm/internal/logger"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/benvon/smart-crm/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecutionResult counts what one execution applied
type ExecutionResult struct {
	ForecastUpdated   bool `json:"forecast_updated"`
	ItemsAdded        int  `json:"items_added"`
	ItemsRemoved      int  `json:"items_removed"`
	NotificationsSent int  `json:"notifications_sent"`
	Duplicates        int  `json:"duplicates"`
	Failures          int  `json:"failures"`
}

// ForecastRefreshPayload is pushed when the model asks for a forecast refresh
type ForecastRefreshPayload struct {
	Reason string `json:"reason,omitempty"`
}

// Executor applies a Recommendation to the action item and notification stores
type Executor struct {
	items         database.ActionItemRepositoryInterface
	notifications database.NotificationRepositoryInterface
	sink          delivery.Sink
	logger        *zap.Logger
}

// NewExecutor creates an executor
func NewExecutor(items database.ActionItemRepositoryInterface, notifications database.NotificationRepositoryInterface, sink delivery.Sink, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		items:         items,
		notifications: notifications,
		sink:          sink,
		logger:        log,
	}
}

// Execute applies rec for userID. Per-item failures are logged and skipped; only when every
// attempted store operation fails is an ExecutionError returned. cycleKey identifies the
// watermark being processed so that a retried cycle reuses the same dedup keys.
func (e *Executor) Execute(ctx context.Context, userID uuid.UUID, cycleKey string, rec *models.Recommendation) (*ExecutionResult, error) {
	result := &ExecutionResult{}
	if rec == nil {
		return result, nil
	}
	log := e.logger.With(zap.String("user_id", logger.SanitizeUserID(userID.String())))

	if rec.ForecastShouldUpdate {
		err := e.sink.Push(ctx, userID, delivery.EventForecastRefresh, ForecastRefreshPayload{Reason: rec.ForecastReason})
		if err != nil {
			log.Warn("overview_forecast_refresh_push_failed", logger.ErrorField(err))
		} else {
			result.ForecastUpdated = true
		}
	}

	attempted := 0
	var failures []error
	fail := func(event string, err error, fields ...zap.Field) {
		failures = append(failures, err)
		result.Failures++
		log.Warn(event, append(fields, logger.ErrorField(err))...)
	}

	for _, op := range rec.ActionItemOps {
		attempted++
		switch op.Type {
		case models.ActionItemOpAdd:
			// model output goes to user-visible rows
			title := validation.SanitizeText(op.Title)
			item := &models.ActionItem{
				UserID:   userID,
				Icon:     validation.SanitizeText(op.Icon),
				Title:    title,
				Category: validation.SanitizeText(op.Category),
				DedupKey: DedupKey(userID, cycleKey, "action_item", title),
			}
			err := e.items.Create(ctx, item)
			switch {
			case errors.Is(err, database.ErrDuplicate):
				result.Duplicates++
			case err != nil:
				fail("overview_action_item_create_failed", err, zap.String("title", logger.SanitizeString(op.Title, 200)))
			default:
				result.ItemsAdded++
			}
		case models.ActionItemOpRemoveMatching:
			n, err := e.items.DeleteMatching(ctx, userID, op.Pattern)
			if err != nil {
				fail("overview_action_item_delete_failed", err, zap.String("pattern", logger.SanitizeString(op.Pattern, 200)))
				continue
			}
			result.ItemsRemoved += int(n)
		default:
			attempted--
		}
	}

	for _, draft := range rec.Notifications {
		attempted++
		n := &models.Notification{
			UserID:   userID,
			Kind:     validation.SanitizeText(draft.Kind),
			Priority: validation.SanitizeText(draft.Priority),
			Title:    validation.SanitizeText(draft.Title),
			Message:  validation.SanitizeText(draft.Message),
		}
		n.DedupKey = DedupKey(userID, cycleKey, "notification", n.Kind, n.Title, n.Message)
		err := e.notifications.Create(ctx, n)
		if errors.Is(err, database.ErrDuplicate) {
			// Stored by an earlier attempt; push it again only if that attempt never delivered it.
			prev, getErr := e.notifications.GetUndelivered(ctx, userID, n.DedupKey)
			if getErr != nil {
				if !errors.Is(getErr, database.ErrNotFound) {
					log.Warn("overview_notification_lookup_failed", logger.ErrorField(getErr))
				}
				result.Duplicates++
				continue
			}
			n = prev
		} else if err != nil {
			fail("overview_notification_create_failed", err, zap.String("title", logger.SanitizeString(draft.Title, 200)))
			continue
		}
		if e.deliver(ctx, log, userID, n) {
			result.NotificationsSent++
		}
	}

	if attempted > 0 && len(failures) == attempted {
		return result, &ExecutionError{Attempted: attempted, Err: errors.Join(failures...)}
	}
	return result, nil
}

// deliver pushes n and records the delivery. A failed record only risks one repeated push.
func (e *Executor) deliver(ctx context.Context, log *zap.Logger, userID uuid.UUID, n *models.Notification) bool {
	if err := e.sink.Push(ctx, userID, delivery.EventNotification, n); err != nil {
		log.Warn("overview_notification_push_failed",
			zap.String("notification_id", n.ID.String()),
			logger.ErrorField(err),
		)
		return false
	}
	if err := e.notifications.MarkDelivered(ctx, n.ID, time.Now()); err != nil {
		log.Warn("overview_notification_mark_delivered_failed",
			zap.String("notification_id", n.ID.String()),
			logger.ErrorField(err),
		)
	}
	return true
}

// DedupKey derives a stable idempotency key for one side effect of one cycle
func DedupKey(userID uuid.UUID, cycleKey string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(userID.String()))
	h.Write([]byte{0})
	h.Write([]byte(cycleKey))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(strings.ToLower(strings.TrimSpace(p))))
	}
	return hex.EncodeToString(h.Sum(nil))
}
