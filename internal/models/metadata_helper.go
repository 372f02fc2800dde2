package models

import "time"

// SuccessMetadata builds the metadata merged into a WorkerState after a successful cycle
func SuccessMetadata(now time.Time, result ExecutionSummary) WorkerMetadata {
	return WorkerMetadata{
		MetadataLastSuccessAt: now.UTC().Format(time.RFC3339Nano),
		MetadataLastResult: map[string]any{
			"total_changes":      result.TotalChanges,
			"forecast_updated":   result.ForecastUpdated,
			"items_added":        result.ItemsAdded,
			"items_removed":      result.ItemsRemoved,
			"notifications_sent": result.NotificationsSent,
		},
	}
}

// ExecutionSummary holds the observability counters of one cycle
type ExecutionSummary struct {
	TotalChanges      int  `json:"total_changes"`
	ForecastUpdated   bool `json:"forecast_updated"`
	ItemsAdded        int  `json:"items_added"`
	ItemsRemoved      int  `json:"items_removed"`
	NotificationsSent int  `json:"notifications_sent"`
}
