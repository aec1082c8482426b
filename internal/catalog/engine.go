package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/rpattn/metacat/internal/domain"
	"github.com/rpattn/metacat/internal/repository"
)

// Operation tags how a desired state is applied.
type Operation string

const (
	// OperationPut creates the entity or fully replaces its tracked fields.
	OperationPut Operation = "PUT"
	// OperationPatch is a constrained modification: immutable fields are
	// silently restored from the stored entity.
	OperationPatch Operation = "PATCH"
)

const fieldDeleted = "deleted"

// Sentinels recorded instead of secret material when a secret field
// changes. Cleartext never reaches the change record.
const (
	secretOldValue = "old-encrypted-value"
	secretNewValue = "new-encrypted-value"
)

// EventSink receives the change event emitted once per successful mutation.
type EventSink interface {
	Publish(ctx context.Context, event domain.ChangeEvent) error
}

// UpdateResult reports the outcome of a mutation. Event is nil when the
// call was a successful no-op.
type UpdateResult struct {
	Entity  domain.Entity
	Event   *domain.ChangeEvent
	Created bool
}

// Engine is the generic entity versioning, relationship and
// change-propagation core. Per-type behavior is dispatched through the
// registry; persistence goes through the store contracts only.
type Engine struct {
	stores   repository.Stores
	tx       repository.TxManager
	registry *Registry
	sink     EventSink
	log      *slog.Logger
	now      func() time.Time
}

// NewEngine wires the engine. sink may be nil when no subscriber is
// configured.
func NewEngine(stores repository.Stores, tx repository.TxManager, registry *Registry, sink EventSink, log *slog.Logger) *Engine {
	return &Engine{
		stores:   stores,
		tx:       tx,
		registry: registry,
		sink:     sink,
		log:      log,
		now:      time.Now,
	}
}

// GetByName loads an entity by fully-qualified name with its
// relationship-backed fields hydrated from the edge graph.
func (eng *Engine) GetByName(ctx context.Context, entityType, fqn string, include domain.Include) (domain.Entity, error) {
	h, err := eng.registry.Handler(entityType)
	if err != nil {
		return domain.Entity{}, err
	}
	entity, err := eng.stores.Entities.LoadByName(ctx, fqn, include)
	if err != nil {
		return domain.Entity{}, err
	}
	if err := eng.hydrateReferences(ctx, h.Spec(), &entity); err != nil {
		return domain.Entity{}, err
	}
	return entity, nil
}

// GetByID is GetByName keyed by id.
func (eng *Engine) GetByID(ctx context.Context, entityType string, id uuid.UUID, include domain.Include) (domain.Entity, error) {
	h, err := eng.registry.Handler(entityType)
	if err != nil {
		return domain.Entity{}, err
	}
	entity, err := eng.stores.Entities.Load(ctx, id, include)
	if err != nil {
		return domain.Entity{}, err
	}
	if err := eng.hydrateReferences(ctx, h.Spec(), &entity); err != nil {
		return domain.Entity{}, err
	}
	return entity, nil
}

// GetContainer returns the single containment parent of an entity, or a
// DataIntegrity error when zero or more than one edge is found.
func (eng *Engine) GetContainer(ctx context.Context, id uuid.UUID) (domain.EntityReference, error) {
	refs, err := eng.stores.Relationships.FindFrom(ctx, id, domain.RelationshipContains, "")
	if err != nil {
		return domain.EntityReference{}, err
	}
	if len(refs) != 1 {
		return domain.EntityReference{}, domain.NewDataIntegrity(
			"expected one containment edge into %s, found %d", id, len(refs))
	}
	return refs[0], nil
}

// CreateOrUpdate applies a desired state under the given operation and
// returns the stored result plus the emitted change event, if any.
func (eng *Engine) CreateOrUpdate(ctx context.Context, desired domain.Entity, op Operation, updatedBy string) (UpdateResult, error) {
	h, err := eng.registry.Handler(desired.Type)
	if err != nil {
		return UpdateResult{}, err
	}
	spec := h.Spec()
	incoming := desired.Copy()
	incoming.UpdatedBy = updatedBy

	if op == OperationPatch {
		if incoming.ID == uuid.Nil {
			return UpdateResult{}, domain.NewValidation("patch requires an entity id")
		}
		original, err := eng.stores.Entities.Load(ctx, incoming.ID, domain.IncludeNonDeleted)
		if err != nil {
			return UpdateResult{}, err
		}
		if err := eng.hydrateReferences(ctx, spec, &original); err != nil {
			return UpdateResult{}, err
		}
		restorePatchAttributes(spec, original, &incoming)
		if err := h.Prepare(ctx, &incoming, true); err != nil {
			return UpdateResult{}, err
		}
		fqn, err := h.FullyQualifiedName(ctx, &incoming)
		if err != nil {
			return UpdateResult{}, err
		}
		incoming.FullyQualifiedName = fqn
		return eng.update(ctx, h, original, incoming)
	}

	if incoming.Name == "" {
		return UpdateResult{}, domain.NewValidation("entity name is required")
	}
	if err := h.Prepare(ctx, &incoming, true); err != nil {
		return UpdateResult{}, err
	}
	fqn, err := h.FullyQualifiedName(ctx, &incoming)
	if err != nil {
		return UpdateResult{}, err
	}
	incoming.FullyQualifiedName = fqn

	original, err := eng.stores.Entities.LoadByName(ctx, fqn, domain.IncludeAll)
	if err != nil {
		if domain.IsNotFound(err) {
			return eng.create(ctx, h, incoming)
		}
		return UpdateResult{}, err
	}
	if err := eng.hydrateReferences(ctx, spec, &original); err != nil {
		return UpdateResult{}, err
	}
	incoming.ID = original.ID
	return eng.update(ctx, h, original, incoming)
}

func (eng *Engine) create(ctx context.Context, h Handler, incoming domain.Entity) (UpdateResult, error) {
	spec := h.Spec()
	entity := incoming
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	entity.Version = domain.InitialVersion
	entity.Deleted = false
	entity.UpdatedAt = eng.now()

	stored := stripReferenceFields(spec, entity)
	edges := collectEdges(spec, entity)

	err := eng.tx.WithTx(ctx, func(s repository.Stores) error {
		if err := s.Entities.Insert(ctx, stored); err != nil {
			return err
		}
		for _, edge := range edges {
			if err := s.Relationships.Insert(ctx, edge); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return UpdateResult{}, err
	}

	record := creationRecord(spec, entity)
	event := eng.newEvent(domain.EventEntityCreated, entity, &record, 0, entity.Version)
	eng.publish(ctx, event)
	return UpdateResult{Entity: entity, Event: &event, Created: true}, nil
}

func (eng *Engine) update(ctx context.Context, h Handler, original, incoming domain.Entity) (UpdateResult, error) {
	spec := h.Spec()
	record := diffScalars(spec, original, incoming)

	edgeOps, refChanges := referenceChanges(spec, original, incoming)
	appendChanges(&record, refChanges)

	secretResult, err := eng.secretChanges(ctx, h, spec, original, incoming)
	if err != nil {
		return UpdateResult{}, err
	}
	appendChanges(&record, secretResult)

	eventType := domain.EventEntityUpdated
	if original.Deleted {
		record.FieldsUpdated = append(record.FieldsUpdated,
			domain.FieldChange{Name: fieldDeleted, OldValue: true, NewValue: false})
		eventType = domain.EventEntityRestored
	}
	incoming.Deleted = false

	if record.IsEmpty() {
		// Identical desired state: no version bump, no write, no event.
		return UpdateResult{Entity: original}, nil
	}

	updated := incoming
	updated.ID = original.ID
	if isMinor(spec, record) {
		updated.Version = domain.NextVersion(original.Version)
	} else {
		updated.Version = domain.NextMajorVersion(original.Version)
	}
	updated.UpdatedAt = eng.now()

	stored := stripReferenceFields(spec, updated)
	err = eng.tx.WithTx(ctx, func(s repository.Stores) error {
		if err := s.Entities.Update(ctx, stored, original.Version); err != nil {
			return err
		}
		return applyEdgeOps(ctx, s.Relationships, edgeOps)
	})
	if err != nil {
		return UpdateResult{}, err
	}

	event := eng.newEvent(eventType, updated, &record, original.Version, updated.Version)
	eng.publish(ctx, event)
	return UpdateResult{Entity: updated, Event: &event}, nil
}

// Delete soft-deletes an entity, or removes it entirely with hardDelete.
// Hard deletion drops the document, its edges and its time-series
// extensions, then runs the handler's post-delete hook best effort.
func (eng *Engine) Delete(ctx context.Context, entityType string, id uuid.UUID, hardDelete bool, deletedBy string) (UpdateResult, error) {
	h, err := eng.registry.Handler(entityType)
	if err != nil {
		return UpdateResult{}, err
	}
	spec := h.Spec()

	if !hardDelete {
		original, err := eng.stores.Entities.Load(ctx, id, domain.IncludeNonDeleted)
		if err != nil {
			return UpdateResult{}, err
		}
		if err := eng.hydrateReferences(ctx, spec, &original); err != nil {
			return UpdateResult{}, err
		}
		updated := original.Copy()
		updated.Deleted = true
		updated.Version = domain.NextVersion(original.Version)
		updated.UpdatedBy = deletedBy
		updated.UpdatedAt = eng.now()

		record := domain.ChangeRecord{
			PreviousVersion: original.Version,
			FieldsUpdated: []domain.FieldChange{
				{Name: fieldDeleted, OldValue: false, NewValue: true},
			},
		}
		stored := stripReferenceFields(spec, updated)
		err = eng.tx.WithTx(ctx, func(s repository.Stores) error {
			return s.Entities.Update(ctx, stored, original.Version)
		})
		if err != nil {
			return UpdateResult{}, err
		}
		event := eng.newEvent(domain.EventEntitySoftDeleted, updated, &record, original.Version, updated.Version)
		eng.publish(ctx, event)
		return UpdateResult{Entity: updated, Event: &event}, nil
	}

	original, err := eng.stores.Entities.Load(ctx, id, domain.IncludeAll)
	if err != nil {
		return UpdateResult{}, err
	}
	if err := eng.hydrateReferences(ctx, spec, &original); err != nil {
		return UpdateResult{}, err
	}
	err = eng.tx.WithTx(ctx, func(s repository.Stores) error {
		if err := s.Relationships.RemoveAll(ctx, id); err != nil {
			return err
		}
		if err := s.TimeSeries.DeleteAll(ctx, original.FullyQualifiedName); err != nil {
			return err
		}
		return s.Entities.Delete(ctx, id)
	})
	if err != nil {
		return UpdateResult{}, err
	}

	if hook, ok := h.(PostDeleteHook); ok {
		// Best-effort cleanup; never blocks the deletion.
		if err := hook.PostDelete(ctx, original); err != nil {
			eng.log.Warn("post-delete cleanup failed",
				"entityType", entityType, "fqn", original.FullyQualifiedName, "error", err)
		}
	}

	event := eng.newEvent(domain.EventEntityDeleted, original, nil, original.Version, original.Version)
	event.UserName = deletedBy
	eng.publish(ctx, event)
	return UpdateResult{Entity: original, Event: &event}, nil
}

// hydrateReferences fills relationship-backed fields from the edge graph.
// The fields are stripped from the stored JSON, so the graph is the single
// source of truth for them.
func (eng *Engine) hydrateReferences(ctx context.Context, spec TypeSpec, entity *domain.Entity) error {
	for _, field := range spec.ReferenceFields() {
		var (
			refs []domain.EntityReference
			err  error
		)
		if field.Reference.Container {
			refs, err = eng.stores.Relationships.FindFrom(ctx, entity.ID, field.Reference.Relation, field.Reference.PeerType)
		} else {
			refs, err = eng.stores.Relationships.FindTo(ctx, entity.ID, field.Reference.Relation, field.Reference.PeerType)
		}
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			continue
		}
		if len(refs) > 1 {
			return domain.NewDataIntegrity("field %q of %s resolves to %d references, want one",
				field.Name, entity.ID, len(refs))
		}
		peer, err := eng.stores.Entities.Load(ctx, refs[0].ID, domain.IncludeAll)
		if err != nil {
			if domain.IsNotFound(err) {
				return domain.NewDataIntegrity("edge for field %q of %s points at missing entity %s",
					field.Name, entity.ID, refs[0].ID)
			}
			return err
		}
		entity.SetField(field.Name, peer.Reference())
	}
	return nil
}

// secretChanges diffs secret fields by transiently decrypting both sides
// and comparing structurally; a difference is recorded with fixed
// sentinels.
func (eng *Engine) secretChanges(ctx context.Context, h Handler, spec TypeSpec, original, incoming domain.Entity) ([]domain.FieldChange, error) {
	var changes []domain.FieldChange
	for _, field := range spec.Fields {
		if !field.Secret {
			continue
		}
		oldValue := original.Field(field.Name)
		newValue := incoming.Field(field.Name)
		switch {
		case oldValue == nil && newValue == nil:
		case oldValue == nil:
			changes = append(changes, domain.FieldChange{Name: field.Name, NewValue: secretNewValue})
		case newValue == nil:
			changes = append(changes, domain.FieldChange{Name: field.Name, OldValue: secretOldValue})
		default:
			codec, ok := h.(SecretCodec)
			if !ok {
				return nil, domain.NewValidation("entity type %q declares secret field %q without a codec",
					h.EntityType(), field.Name)
			}
			oldClear, err := codec.DecryptSecret(ctx, original, field.Name, oldValue)
			if err != nil {
				return nil, err
			}
			newClear, err := codec.DecryptSecret(ctx, incoming, field.Name, newValue)
			if err != nil {
				return nil, err
			}
			if !cmp.Equal(oldClear, newClear) {
				changes = append(changes, domain.FieldChange{
					Name:     field.Name,
					OldValue: secretOldValue,
					NewValue: secretNewValue,
				})
			}
		}
	}
	return changes, nil
}

func (eng *Engine) newEvent(eventType domain.EventType, entity domain.Entity, record *domain.ChangeRecord, previous, current float64) domain.ChangeEvent {
	return domain.ChangeEvent{
		EventType:          eventType,
		EntityType:         entity.Type,
		EntityID:           entity.ID,
		FullyQualifiedName: entity.FullyQualifiedName,
		UserName:           entity.UpdatedBy,
		Timestamp:          eng.now(),
		PreviousVersion:    previous,
		CurrentVersion:     current,
		Change:             record,
		Entity:             entity,
	}
}

func (eng *Engine) publish(ctx context.Context, event domain.ChangeEvent) {
	if eng.sink == nil {
		return
	}
	// A committed mutation is never rolled back for a sink failure; search
	// converges via backfill reindex.
	if err := eng.sink.Publish(ctx, event); err != nil {
		eng.log.Error("failed to publish change event",
			"eventType", event.EventType, "fqn", event.FullyQualifiedName, "error", err)
	}
}

// restorePatchAttributes undoes PATCH attempts against immutable fields by
// copying the stored values back over the incoming ones.
func restorePatchAttributes(spec TypeSpec, original domain.Entity, incoming *domain.Entity) {
	incoming.ID = original.ID
	incoming.Name = original.Name
	incoming.FullyQualifiedName = original.FullyQualifiedName
	for _, name := range spec.Immutable {
		if value := original.Field(name); value != nil {
			incoming.SetField(name, value)
		} else if incoming.Fields != nil {
			delete(incoming.Fields, name)
		}
	}
}

type edgeOp struct {
	remove *domain.EntityRelationship
	insert *domain.EntityRelationship
}

// referenceChanges computes edge replacements and their change entries for
// relationship-backed fields. Change values use the references' string
// form, never raw documents.
func referenceChanges(spec TypeSpec, original, incoming domain.Entity) ([]edgeOp, []domain.FieldChange) {
	var (
		ops     []edgeOp
		changes []domain.FieldChange
	)
	for _, field := range spec.ReferenceFields() {
		oldRef, oldOK := domain.RefField(original.Field(field.Name))
		newRef, newOK := domain.RefField(incoming.Field(field.Name))
		if !oldOK && !newOK {
			continue
		}
		if oldOK && newOK && oldRef.ID == newRef.ID {
			continue
		}
		op := edgeOp{}
		if oldOK {
			edge := edgeFor(field, original, oldRef)
			op.remove = &edge
		}
		if newOK {
			edge := edgeFor(field, original, newRef)
			op.insert = &edge
		}
		ops = append(ops, op)

		change := domain.FieldChange{Name: field.Name}
		if oldOK {
			change.OldValue = oldRef.String()
		}
		if newOK {
			change.NewValue = newRef.String()
		}
		changes = append(changes, change)
	}
	return ops, changes
}

func applyEdgeOps(ctx context.Context, relationships repository.RelationshipStore, ops []edgeOp) error {
	for _, op := range ops {
		if op.remove != nil {
			if err := relationships.Remove(ctx, *op.remove); err != nil {
				return err
			}
		}
		if op.insert != nil {
			if err := relationships.Insert(ctx, *op.insert); err != nil {
				return err
			}
		}
	}
	return nil
}

// collectEdges builds the edges implied by an entity's resolved reference
// fields, used on creation.
func collectEdges(spec TypeSpec, entity domain.Entity) []domain.EntityRelationship {
	var edges []domain.EntityRelationship
	for _, field := range spec.ReferenceFields() {
		if ref, ok := domain.RefField(entity.Field(field.Name)); ok {
			edges = append(edges, edgeFor(field, entity, ref))
		}
	}
	return edges
}

func edgeFor(field FieldSpec, entity domain.Entity, ref domain.EntityReference) domain.EntityRelationship {
	if field.Reference.Container {
		return domain.EntityRelationship{
			FromID:   ref.ID,
			FromType: ref.Type,
			ToID:     entity.ID,
			ToType:   entity.Type,
			Relation: field.Reference.Relation,
		}
	}
	return domain.EntityRelationship{
		FromID:   entity.ID,
		FromType: entity.Type,
		ToID:     ref.ID,
		ToType:   ref.Type,
		Relation: field.Reference.Relation,
	}
}

// stripReferenceFields removes relationship-backed fields from the stored
// document; they live in the edge graph.
func stripReferenceFields(spec TypeSpec, entity domain.Entity) domain.Entity {
	stored := entity.Copy()
	for _, field := range spec.ReferenceFields() {
		if stored.Fields != nil {
			delete(stored.Fields, field.Name)
		}
	}
	return stored
}

// creationRecord lists every stored tracked field as added.
func creationRecord(spec TypeSpec, entity domain.Entity) domain.ChangeRecord {
	record := domain.ChangeRecord{PreviousVersion: 0}
	for _, field := range spec.Fields {
		value := entity.Field(field.Name)
		if value == nil {
			continue
		}
		change := domain.FieldChange{Name: field.Name}
		switch {
		case field.Secret:
			change.NewValue = secretNewValue
		case field.Reference != nil:
			if ref, ok := domain.RefField(value); ok {
				change.NewValue = ref.String()
			} else {
				continue
			}
		default:
			change.NewValue = value
		}
		record.FieldsAdded = append(record.FieldsAdded, change)
	}
	return record
}

func appendChanges(record *domain.ChangeRecord, changes []domain.FieldChange) {
	for _, change := range changes {
		switch {
		case change.OldValue == nil && change.NewValue != nil:
			record.FieldsAdded = append(record.FieldsAdded, change)
		case change.OldValue != nil && change.NewValue == nil:
			record.FieldsDeleted = append(record.FieldsDeleted, change)
		default:
			record.FieldsUpdated = append(record.FieldsUpdated, change)
		}
	}
}
