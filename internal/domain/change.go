package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a change event.
type EventType string

const (
	EventEntityCreated     EventType = "entityCreated"
	EventEntityUpdated     EventType = "entityUpdated"
	EventEntitySoftDeleted EventType = "entitySoftDeleted"
	EventEntityRestored    EventType = "entityRestored"
	EventEntityDeleted     EventType = "entityDeleted"
)

// FieldChange names one field and carries its old and/or new value. Added
// fields have only NewValue, deleted fields only OldValue.
type FieldChange struct {
	Name     string `json:"name"`
	OldValue any    `json:"oldValue,omitempty"`
	NewValue any    `json:"newValue,omitempty"`
}

// ChangeRecord is the field-level diff of one mutation.
type ChangeRecord struct {
	PreviousVersion float64       `json:"previousVersion"`
	FieldsAdded     []FieldChange `json:"fieldsAdded,omitempty"`
	FieldsUpdated   []FieldChange `json:"fieldsUpdated,omitempty"`
	FieldsDeleted   []FieldChange `json:"fieldsDeleted,omitempty"`
}

// IsEmpty reports whether the record describes no change at all. An empty
// record must never produce a version bump.
func (c ChangeRecord) IsEmpty() bool {
	return len(c.FieldsAdded) == 0 && len(c.FieldsUpdated) == 0 && len(c.FieldsDeleted) == 0
}

// ChangeEvent wraps a change record with the resulting entity snapshot and
// the mutation envelope. Emitted once per successful mutation.
type ChangeEvent struct {
	EventType          EventType     `json:"eventType"`
	EntityType         string        `json:"entityType"`
	EntityID           uuid.UUID     `json:"entityId"`
	FullyQualifiedName string        `json:"entityFullyQualifiedName"`
	UserName           string        `json:"userName"`
	Timestamp          time.Time     `json:"timestamp"`
	PreviousVersion    float64       `json:"previousVersion"`
	CurrentVersion     float64       `json:"currentVersion"`
	Change             *ChangeRecord `json:"changeDescription,omitempty"`
	Entity             Entity        `json:"entity"`
}
