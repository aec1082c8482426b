package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/rpattn/metacat/internal/domain"
)

// EntityStore is the narrow document-store contract the engine persists
// through. Implementations must provide get-by-id, get-by-unique-name and
// compare-and-swap update semantics per entity row.
type EntityStore interface {
	Load(ctx context.Context, id uuid.UUID, include domain.Include) (domain.Entity, error)
	LoadByName(ctx context.Context, fqn string, include domain.Include) (domain.Entity, error)
	// Insert stores a brand-new entity and fails if the id or name is taken.
	Insert(ctx context.Context, entity domain.Entity) error
	// Update replaces the stored document only when the stored version still
	// equals expectedVersion, otherwise it returns a Conflict error.
	Update(ctx context.Context, entity domain.Entity, expectedVersion float64) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByType pages entities of one type ordered by fully-qualified name,
	// returning rows with name greater than afterName. Used by the reindex
	// backfill scan.
	ListByType(ctx context.Context, entityType string, include domain.Include, afterName string, limit int) ([]domain.Entity, error)
}

// RelationshipStore holds the typed directed edge graph.
type RelationshipStore interface {
	// Insert is idempotent: re-adding an identical edge is a no-op. Adding a
	// second containment edge into an entity returns a DataIntegrity error.
	Insert(ctx context.Context, edge domain.EntityRelationship) error
	Remove(ctx context.Context, edge domain.EntityRelationship) error
	// RemoveAll drops every edge touching the entity, in either direction.
	RemoveAll(ctx context.Context, id uuid.UUID) error
	// FindTo returns references to entities the given entity points at.
	FindTo(ctx context.Context, fromID uuid.UUID, relation domain.Relationship, toType string) ([]domain.EntityReference, error)
	// FindFrom returns references to entities pointing at the given entity.
	FindFrom(ctx context.Context, toID uuid.UUID, relation domain.Relationship, fromType string) ([]domain.EntityReference, error)
}

// TimeSeriesStore holds append-only extension records keyed by
// (entityFQN, extension, timestamp).
type TimeSeriesStore interface {
	// Insert appends a record; a duplicate (fqn, extension, timestamp) triple
	// returns a Conflict error.
	Insert(ctx context.Context, record domain.TimeSeriesRecord) error
	AtTimestamp(ctx context.Context, fqn, extension string, timestamp int64) (json.RawMessage, error)
	Latest(ctx context.Context, fqn, extension string) (json.RawMessage, error)
	Between(ctx context.Context, fqn, extension string, startTs, endTs int64, order domain.TimeSeriesOrder) ([]domain.TimeSeriesRecord, error)
	// DeleteAtTimestamp removes one record, returning NotFound when absent.
	DeleteAtTimestamp(ctx context.Context, fqn, extension string, timestamp int64) error
	// DeleteAll drops every extension record for the entity.
	DeleteAll(ctx context.Context, fqn string) error
}
