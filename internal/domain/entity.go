package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Include selects which entities a load is allowed to see with respect to
// the soft-delete flag.
type Include string

const (
	IncludeAll         Include = "all"
	IncludeNonDeleted  Include = "non-deleted"
	IncludeDeletedOnly Include = "deleted"
)

// Matches reports whether an entity with the given deleted flag is visible
// under this inclusion policy.
func (i Include) Matches(deleted bool) bool {
	switch i {
	case IncludeAll:
		return true
	case IncludeDeletedOnly:
		return deleted
	default:
		return !deleted
	}
}

// Entity is a versioned catalog document. Type-specific payload lives in
// Fields; relationship-backed fields are held there transiently but are
// stripped before the document is stored.
type Entity struct {
	ID                 uuid.UUID      `json:"id"`
	Type               string         `json:"type"`
	Name               string         `json:"name"`
	FullyQualifiedName string         `json:"fullyQualifiedName"`
	Version            float64        `json:"version"`
	UpdatedBy          string         `json:"updatedBy"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	Deleted            bool           `json:"deleted"`
	Fields             map[string]any `json:"fields,omitempty"`
}

// Copy returns a copy safe for read-modify-write: the Fields map is cloned
// one level down, which covers whole-field replacement by the engine.
func (e Entity) Copy() Entity {
	out := e
	out.Fields = cloneFields(e.Fields)
	return out
}

// Field returns the named payload field, or nil when absent.
func (e Entity) Field(name string) any {
	if e.Fields == nil {
		return nil
	}
	return e.Fields[name]
}

// SetField sets a payload field, allocating the map on first use.
func (e *Entity) SetField(name string, value any) {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[name] = value
}

// EntityReference points at another entity. References resolved during
// prepare carry the full name so change records and edges can be recorded
// without another lookup.
type EntityReference struct {
	ID                 uuid.UUID `json:"id"`
	Type               string    `json:"type"`
	Name               string    `json:"name,omitempty"`
	FullyQualifiedName string    `json:"fullyQualifiedName,omitempty"`
	Deleted            bool      `json:"deleted,omitempty"`
}

// Reference returns the entity's own reference.
func (e Entity) Reference() EntityReference {
	return EntityReference{
		ID:                 e.ID,
		Type:               e.Type,
		Name:               e.Name,
		FullyQualifiedName: e.FullyQualifiedName,
		Deleted:            e.Deleted,
	}
}

// AsField converts the reference into the JSON-shaped form stored in
// Entity.Fields.
func (r EntityReference) AsField() map[string]any {
	return map[string]any{
		"id":                 r.ID.String(),
		"type":               r.Type,
		"name":               r.Name,
		"fullyQualifiedName": r.FullyQualifiedName,
	}
}

// String is the representation used in change records for
// relationship-backed fields.
func (r EntityReference) String() string {
	if r.FullyQualifiedName != "" {
		return r.FullyQualifiedName
	}
	return r.ID.String()
}

// RefField decodes a reference field from an entity payload. Values arrive
// either as EntityReference (set by prepare hooks) or as the JSON map shape
// (set by API clients).
func RefField(value any) (EntityReference, bool) {
	switch v := value.(type) {
	case EntityReference:
		return v, true
	case *EntityReference:
		if v == nil {
			return EntityReference{}, false
		}
		return *v, true
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return EntityReference{}, false
		}
		var ref EntityReference
		if err := json.Unmarshal(raw, &ref); err != nil {
			return EntityReference{}, false
		}
		return ref, ref.ID != uuid.Nil || ref.FullyQualifiedName != ""
	default:
		return EntityReference{}, false
	}
}

// BuildFQN derives a fully-qualified name from the parent chain plus the
// local name, e.g. "service.asset".
func BuildFQN(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
