package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeType classifies a detected record relative to the detection moment
type ChangeType string

const (
	ChangeTypeNew     ChangeType = "new"
	ChangeTypeUpdated ChangeType = "updated"
)

// NewRecordWindow is how recently a record must have been inserted to count as new
const NewRecordWindow = 5 * time.Minute

// ClassifyChange returns ChangeTypeNew iff now - insertedAt < NewRecordWindow.
// A record exactly NewRecordWindow old is updated.
func ClassifyChange(insertedAt, now time.Time) ChangeType {
	if now.Sub(insertedAt) < NewRecordWindow {
		return ChangeTypeNew
	}
	return ChangeTypeUpdated
}

// Field is one named value of a change record projection
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ChangeRecord is a compact read-only projection of one modified entity
type ChangeRecord struct {
	Kind       EntityKind `json:"kind"`
	ID         uuid.UUID  `json:"id"`
	Title      string     `json:"title"`
	Fields     []Field    `json:"fields,omitempty"`
	InsertedAt time.Time  `json:"inserted_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ChangeType ChangeType `json:"change_type"`
}

// ChangeSummary aggregates counts over a ChangeSet
type ChangeSummary struct {
	TotalChanges int                `json:"total_changes"`
	ByKind       map[EntityKind]int `json:"by_kind"`
	HasChanges   bool               `json:"has_changes"`
}

// ChangeSet is the output of one detection pass
type ChangeSet struct {
	Contacts []ChangeRecord `json:"contacts"`
	Deals    []ChangeRecord `json:"deals"`
	Events   []ChangeRecord `json:"events"`
	Summary  ChangeSummary  `json:"summary"`
}

// NewChangeSet builds a ChangeSet and its summary from per-kind record lists
func NewChangeSet(contacts, deals, events []ChangeRecord) *ChangeSet {
	cs := &ChangeSet{
		Contacts: nonNil(contacts),
		Deals:    nonNil(deals),
		Events:   nonNil(events),
	}
	byKind := map[EntityKind]int{
		EntityKindContacts: len(cs.Contacts),
		EntityKindDeals:    len(cs.Deals),
		EntityKindEvents:   len(cs.Events),
	}
	total := len(cs.Contacts) + len(cs.Deals) + len(cs.Events)
	cs.Summary = ChangeSummary{
		TotalChanges: total,
		ByKind:       byKind,
		HasChanges:   total > 0,
	}
	return cs
}

// Records returns the records of a single kind
func (cs *ChangeSet) Records(kind EntityKind) []ChangeRecord {
	switch kind {
	case EntityKindContacts:
		return cs.Contacts
	case EntityKindDeals:
		return cs.Deals
	case EntityKindEvents:
		return cs.Events
	default:
		return nil
	}
}

func nonNil(records []ChangeRecord) []ChangeRecord {
	if records == nil {
		return []ChangeRecord{}
	}
	return records
}
