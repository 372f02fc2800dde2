package models

import (
	"maps"
	"time"
)

// Well-known worker metadata keys
const (
	MetadataLastSuccessAt = "last_success_at"
	MetadataLastResult    = "last_result"
)

// WorkerMetadata is the open key/value map stored alongside a WorkerState
type WorkerMetadata map[string]any

// Merge returns a copy of m with every key of other set on top
func (m WorkerMetadata) Merge(other WorkerMetadata) WorkerMetadata {
	merged := make(WorkerMetadata, len(m)+len(other))
	maps.Copy(merged, m)
	maps.Copy(merged, other)
	return merged
}

// LastSuccessAt returns the time of the last fully successful cycle, if recorded.
// Values round-trip through JSON as RFC3339 strings.
func (m WorkerMetadata) LastSuccessAt() (time.Time, bool) {
	switch v := m[MetadataLastSuccessAt].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
