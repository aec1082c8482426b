package catalog

import (
	"encoding/json"

	"github.com/rpattn/metacat/internal/domain"
)

// diffScalars computes the field-level diff for tracked scalar fields.
// Relationship-backed and secret fields are diffed separately by the
// engine; the result is a pure value, no store involved.
func diffScalars(spec TypeSpec, original, updated domain.Entity) domain.ChangeRecord {
	record := domain.ChangeRecord{PreviousVersion: original.Version}
	for _, field := range spec.Fields {
		if field.Reference != nil || field.Secret {
			continue
		}
		oldValue := original.Field(field.Name)
		newValue := updated.Field(field.Name)
		switch {
		case oldValue == nil && newValue == nil:
		case oldValue == nil:
			record.FieldsAdded = append(record.FieldsAdded,
				domain.FieldChange{Name: field.Name, NewValue: newValue})
		case newValue == nil:
			record.FieldsDeleted = append(record.FieldsDeleted,
				domain.FieldChange{Name: field.Name, OldValue: oldValue})
		case !valueEqual(oldValue, newValue):
			record.FieldsUpdated = append(record.FieldsUpdated,
				domain.FieldChange{Name: field.Name, OldValue: oldValue, NewValue: newValue})
		}
	}
	return record
}

// valueEqual compares two JSON-shaped values by canonical encoding.
// encoding/json sorts map keys, so the comparison is deterministic.
func valueEqual(a, b any) bool {
	aJSON, errA := json.Marshal(a)
	bJSON, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aJSON) == string(bJSON)
}

// isMinor reports whether every changed field in the record is flagged
// minor. The deleted flag counts as minor: soft delete and restore bump
// only the decimal part.
func isMinor(spec TypeSpec, record domain.ChangeRecord) bool {
	check := func(changes []domain.FieldChange) bool {
		for _, change := range changes {
			if change.Name == fieldDeleted {
				continue
			}
			field, ok := spec.Field(change.Name)
			if !ok || !field.Minor {
				return false
			}
		}
		return true
	}
	return check(record.FieldsAdded) && check(record.FieldsUpdated) && check(record.FieldsDeleted)
}
