package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewWorkerState_Defaults(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state := NewWorkerState(uuid.New(), now)

	if !state.LastRunAt.Equal(now) {
		t.Errorf("expected LastRunAt=%v, got %v", now, state.LastRunAt)
	}
	if state.CooldownPeriodSeconds != DefaultCooldownSeconds {
		t.Errorf("expected default cooldown %d, got %d", DefaultCooldownSeconds, state.CooldownPeriodSeconds)
	}
	if !state.Enabled {
		t.Error("expected new state to be enabled")
	}
	for _, kind := range AllEntityKinds {
		if !state.Observes(kind) {
			t.Errorf("expected default state to observe %s", kind)
		}
	}
	if want := now.Add(900 * time.Second); !state.NextRunAt().Equal(want) {
		t.Errorf("expected NextRunAt=%v, got %v", want, state.NextRunAt())
	}
}

func TestEntityKind_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind  EntityKind
		valid bool
	}{
		{EntityKindContacts, true},
		{EntityKindDeals, true},
		{EntityKindEvents, true},
		{EntityKind("messages"), false},
		{EntityKind(""), false},
	}

	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.valid {
			t.Errorf("EntityKind(%q).Valid() = %v, want %v", tt.kind, got, tt.valid)
		}
	}
}

func TestWorkerMetadata_MergeAndLastSuccess(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	base := WorkerMetadata{"note": "keep", MetadataLastResult: "old"}
	merged := base.Merge(SuccessMetadata(now, ExecutionSummary{ItemsAdded: 2}))

	if merged["note"] != "keep" {
		t.Error("expected existing keys to survive merge")
	}
	if _, ok := base[MetadataLastSuccessAt]; ok {
		t.Error("expected Merge not to mutate the receiver")
	}
	got, ok := merged.LastSuccessAt()
	if !ok {
		t.Fatal("expected last success time to be present")
	}
	if !got.Equal(now) {
		t.Errorf("expected %v, got %v", now, got)
	}

	if _, ok := (WorkerMetadata{}).LastSuccessAt(); ok {
		t.Error("expected no last success time on empty metadata")
	}
}
