package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rpattn/metacat/internal/domain"
	"github.com/rpattn/metacat/internal/repository"
)

// ReferenceSpec declares that a field is backed by a relationship edge
// instead of stored JSON.
type ReferenceSpec struct {
	Relation domain.Relationship
	PeerType string
	// Container marks the referenced entity as this entity's parent: the
	// edge runs peer -> entity. Otherwise the edge runs entity -> peer.
	Container bool
}

// FieldSpec describes one tracked field of an entity type.
type FieldSpec struct {
	Name string
	// Minor marks changes to this field as decimal-part version bumps.
	Minor bool
	// Reference, when set, makes the field relationship-backed.
	Reference *ReferenceSpec
	// Secret marks a field that is encrypted before storage and compared
	// only in decrypted form, never logged in cleartext.
	Secret bool
}

// TypeSpec is the per-entity-type static data driving the generic engine:
// which fields are tracked, how they are diffed, and which ones PATCH may
// not touch.
type TypeSpec struct {
	Fields []FieldSpec
	// Immutable lists payload fields PATCH silently restores from the
	// stored entity. The id, name and fully-qualified name are always
	// restored and need not be listed.
	Immutable []string
}

// Field returns the spec for a tracked field name.
func (s TypeSpec) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// ReferenceFields returns the relationship-backed field specs.
func (s TypeSpec) ReferenceFields() []FieldSpec {
	var out []FieldSpec
	for _, f := range s.Fields {
		if f.Reference != nil {
			out = append(out, f)
		}
	}
	return out
}

// Handler is the per-entity-type capability interface consumed by the
// engine. Implementations resolve references, denormalize derived fields
// and run business validation; the engine owns everything generic.
type Handler interface {
	EntityType() string
	Spec() TypeSpec
	// FullyQualifiedName recomputes the entity's name from its parent
	// reference(s) plus local name. Pure with respect to storage; parent
	// references must already be resolved by Prepare.
	FullyQualifiedName(ctx context.Context, entity *domain.Entity) (string, error)
	// Prepare validates the desired state and resolves reference fields to
	// full EntityReference values, failing with NotFound or Validation
	// before any mutation happens.
	Prepare(ctx context.Context, entity *domain.Entity, update bool) error
}

// SecretCodec is implemented by handlers whose spec declares secret fields.
// Decrypt returns the transient cleartext form used for structural
// comparison only.
type SecretCodec interface {
	DecryptSecret(ctx context.Context, entity domain.Entity, field string, value any) (any, error)
}

// PostDeleteHook runs after an entity is hard-deleted, e.g. to clean up
// secrets. Failures are logged, never escalated.
type PostDeleteHook interface {
	PostDelete(ctx context.Context, entity domain.Entity) error
}

// Registry is the process-wide entity-type table, populated once at startup
// and read-only afterwards.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a registry from the given handlers.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	table := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		if _, dup := table[h.EntityType()]; dup {
			return nil, fmt.Errorf("duplicate handler for entity type %q", h.EntityType())
		}
		table[h.EntityType()] = h
	}
	return &Registry{handlers: table}, nil
}

// Handler looks up the handler for an entity type.
func (r *Registry) Handler(entityType string) (Handler, error) {
	h, ok := r.handlers[entityType]
	if !ok {
		return nil, domain.NewValidation("unsupported entity type %q", entityType)
	}
	return h, nil
}

// Types returns the registered entity-type names.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Finder loads other entities during prepare, e.g. to resolve and validate
// a parent reference.
type Finder interface {
	ByReference(ctx context.Context, ref domain.EntityReference, include domain.Include) (domain.Entity, error)
}

// storeFinder resolves references against the entity store by id first,
// then by fully-qualified name.
type storeFinder struct {
	entities repository.EntityStore
}

// NewFinder creates a store-backed reference resolver.
func NewFinder(entities repository.EntityStore) Finder {
	return &storeFinder{entities: entities}
}

func (f *storeFinder) ByReference(ctx context.Context, ref domain.EntityReference, include domain.Include) (domain.Entity, error) {
	if ref.ID != uuid.Nil {
		return f.entities.Load(ctx, ref.ID, include)
	}
	if ref.FullyQualifiedName != "" {
		return f.entities.LoadByName(ctx, ref.FullyQualifiedName, include)
	}
	return domain.Entity{}, domain.NewValidation("reference must carry an id or fully-qualified name")
}
