package domain

import "github.com/google/uuid"

// Relationship is the kind of a directed edge between two entities.
type Relationship string

const (
	// RelationshipContains links a parent to the child it owns. At most one
	// containment edge may point into any entity.
	RelationshipContains Relationship = "contains"
	// RelationshipUses links a consumer to the producer it references.
	RelationshipUses Relationship = "uses"
	// RelationshipMentionedIn links an entity to content referring to it.
	RelationshipMentionedIn Relationship = "mentionedIn"
)

// EntityRelationship is a typed directed edge between two entity ids.
type EntityRelationship struct {
	FromID   uuid.UUID    `json:"fromId"`
	FromType string       `json:"fromType"`
	ToID     uuid.UUID    `json:"toId"`
	ToType   string       `json:"toType"`
	Relation Relationship `json:"relation"`
}

// From returns the edge origin as a reference.
func (r EntityRelationship) From() EntityReference {
	return EntityReference{ID: r.FromID, Type: r.FromType}
}

// To returns the edge target as a reference.
func (r EntityRelationship) To() EntityReference {
	return EntityReference{ID: r.ToID, Type: r.ToType}
}
