package catalog

import (
	"testing"

	"github.com/rpattn/metacat/internal/domain"
)

func diffSpec() TypeSpec {
	return TypeSpec{
		Fields: []FieldSpec{
			{Name: "displayName", Minor: true},
			{Name: "description", Minor: true},
			{Name: "chartType"},
			{Name: "metrics"},
		},
	}
}

func entityWith(fields map[string]any) domain.Entity {
	return domain.Entity{Version: 1.2, Fields: fields}
}

func TestDiffScalarsClassifiesChanges(t *testing.T) {
	spec := diffSpec()
	original := entityWith(map[string]any{
		"description": "old",
		"chartType":   "Line",
	})
	updated := entityWith(map[string]any{
		"displayName": "Sales",
		"chartType":   "Bar",
	})

	record := diffScalars(spec, original, updated)

	if record.PreviousVersion != 1.2 {
		t.Errorf("previousVersion = %v, want 1.2", record.PreviousVersion)
	}
	if len(record.FieldsAdded) != 1 || record.FieldsAdded[0].Name != "displayName" {
		t.Errorf("fieldsAdded = %v, want displayName", record.FieldsAdded)
	}
	if len(record.FieldsDeleted) != 1 || record.FieldsDeleted[0].Name != "description" {
		t.Errorf("fieldsDeleted = %v, want description", record.FieldsDeleted)
	}
	if len(record.FieldsUpdated) != 1 || record.FieldsUpdated[0].Name != "chartType" {
		t.Errorf("fieldsUpdated = %v, want chartType", record.FieldsUpdated)
	}
	if record.FieldsUpdated[0].OldValue != "Line" || record.FieldsUpdated[0].NewValue != "Bar" {
		t.Errorf("chartType change = %+v", record.FieldsUpdated[0])
	}
}

func TestDiffScalarsIdenticalStateIsEmpty(t *testing.T) {
	spec := diffSpec()
	fields := map[string]any{
		"description": "same",
		"metrics":     []any{map[string]any{"name": "m1"}},
	}
	record := diffScalars(spec, entityWith(fields), entityWith(fields))
	if !record.IsEmpty() {
		t.Errorf("expected empty record, got %+v", record)
	}
}

func TestDiffScalarsComparesStructurally(t *testing.T) {
	spec := diffSpec()
	// Same logical value with different map iteration order.
	original := entityWith(map[string]any{
		"metrics": []any{map[string]any{"name": "m1", "expression": "sum(x)"}},
	})
	updated := entityWith(map[string]any{
		"metrics": []any{map[string]any{"expression": "sum(x)", "name": "m1"}},
	})
	if record := diffScalars(spec, original, updated); !record.IsEmpty() {
		t.Errorf("structurally equal values diffed: %+v", record)
	}
}

func TestDiffScalarsIgnoresUntrackedFields(t *testing.T) {
	spec := diffSpec()
	original := entityWith(map[string]any{"internal": "a"})
	updated := entityWith(map[string]any{"internal": "b"})
	if record := diffScalars(spec, original, updated); !record.IsEmpty() {
		t.Errorf("untracked field produced changes: %+v", record)
	}
}

func TestIsMinor(t *testing.T) {
	spec := diffSpec()
	cases := []struct {
		name   string
		record domain.ChangeRecord
		want   bool
	}{
		{
			name: "only minor fields",
			record: domain.ChangeRecord{FieldsUpdated: []domain.FieldChange{
				{Name: "description"}, {Name: "displayName"},
			}},
			want: true,
		},
		{
			name: "one major field",
			record: domain.ChangeRecord{FieldsUpdated: []domain.FieldChange{
				{Name: "description"}, {Name: "chartType"},
			}},
			want: false,
		},
		{
			name: "major field deleted",
			record: domain.ChangeRecord{FieldsDeleted: []domain.FieldChange{
				{Name: "metrics"},
			}},
			want: false,
		},
		{
			name: "deleted flag counts minor",
			record: domain.ChangeRecord{FieldsUpdated: []domain.FieldChange{
				{Name: fieldDeleted, OldValue: false, NewValue: true},
			}},
			want: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isMinor(spec, tc.record); got != tc.want {
				t.Errorf("isMinor = %v, want %v", got, tc.want)
			}
		})
	}
}
