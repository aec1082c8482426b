package catalog

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"

	"github.com/rpattn/metacat/internal/domain"
	"github.com/rpattn/metacat/internal/repository"
)

// In-memory store implementations backing the engine tests. They enforce
// the same contracts the SQL stores do: CAS updates, idempotent edge
// insertion, the single containment parent rule and unique time-series
// triples.

type memEntityStore struct {
	byID map[uuid.UUID]domain.Entity
}

func newMemEntityStore() *memEntityStore {
	return &memEntityStore{byID: make(map[uuid.UUID]domain.Entity)}
}

func (s *memEntityStore) Load(ctx context.Context, id uuid.UUID, include domain.Include) (domain.Entity, error) {
	e, ok := s.byID[id]
	if !ok || !include.Matches(e.Deleted) {
		return domain.Entity{}, domain.NewNotFound("entity %s not found", id)
	}
	return e.Copy(), nil
}

func (s *memEntityStore) LoadByName(ctx context.Context, fqn string, include domain.Include) (domain.Entity, error) {
	for _, e := range s.byID {
		if e.FullyQualifiedName == fqn {
			if !include.Matches(e.Deleted) {
				return domain.Entity{}, domain.NewNotFound("entity %s not found", fqn)
			}
			return e.Copy(), nil
		}
	}
	return domain.Entity{}, domain.NewNotFound("entity %s not found", fqn)
}

func (s *memEntityStore) Insert(ctx context.Context, entity domain.Entity) error {
	if _, dup := s.byID[entity.ID]; dup {
		return domain.NewConflict("entity %s already exists", entity.ID)
	}
	for _, e := range s.byID {
		if e.FullyQualifiedName == entity.FullyQualifiedName {
			return domain.NewConflict("entity %s already exists", entity.FullyQualifiedName)
		}
	}
	s.byID[entity.ID] = entity.Copy()
	return nil
}

func (s *memEntityStore) Update(ctx context.Context, entity domain.Entity, expectedVersion float64) error {
	current, ok := s.byID[entity.ID]
	if !ok {
		return domain.NewNotFound("entity %s not found", entity.ID)
	}
	if current.Version != expectedVersion {
		return domain.NewConflict("entity %s version is %v, expected %v", entity.ID, current.Version, expectedVersion)
	}
	s.byID[entity.ID] = entity.Copy()
	return nil
}

func (s *memEntityStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.byID[id]; !ok {
		return domain.NewNotFound("entity %s not found", id)
	}
	delete(s.byID, id)
	return nil
}

func (s *memEntityStore) ListByType(ctx context.Context, entityType string, include domain.Include, afterName string, limit int) ([]domain.Entity, error) {
	var out []domain.Entity
	for _, e := range s.byID {
		if e.Type == entityType && include.Matches(e.Deleted) && e.FullyQualifiedName > afterName {
			out = append(out, e.Copy())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FullyQualifiedName < out[j].FullyQualifiedName
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memRelationshipStore struct {
	entities *memEntityStore
	edges    []domain.EntityRelationship
}

func (s *memRelationshipStore) Insert(ctx context.Context, edge domain.EntityRelationship) error {
	for _, e := range s.edges {
		if e == edge {
			return nil
		}
	}
	if edge.Relation == domain.RelationshipContains {
		for _, e := range s.edges {
			if e.ToID == edge.ToID && e.Relation == domain.RelationshipContains {
				return domain.NewDataIntegrity("entity %s already has a containment parent", edge.ToID)
			}
		}
	}
	s.edges = append(s.edges, edge)
	return nil
}

func (s *memRelationshipStore) Remove(ctx context.Context, edge domain.EntityRelationship) error {
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e != edge {
			kept = append(kept, e)
		}
	}
	s.edges = kept
	return nil
}

func (s *memRelationshipStore) RemoveAll(ctx context.Context, id uuid.UUID) error {
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.FromID != id && e.ToID != id {
			kept = append(kept, e)
		}
	}
	s.edges = kept
	return nil
}

func (s *memRelationshipStore) FindTo(ctx context.Context, fromID uuid.UUID, relation domain.Relationship, toType string) ([]domain.EntityReference, error) {
	var refs []domain.EntityReference
	for _, e := range s.edges {
		if e.FromID == fromID && e.Relation == relation && (toType == "" || e.ToType == toType) {
			refs = append(refs, s.reference(e.ToID))
		}
	}
	return refs, nil
}

func (s *memRelationshipStore) FindFrom(ctx context.Context, toID uuid.UUID, relation domain.Relationship, fromType string) ([]domain.EntityReference, error) {
	var refs []domain.EntityReference
	for _, e := range s.edges {
		if e.ToID == toID && e.Relation == relation && (fromType == "" || e.FromType == fromType) {
			refs = append(refs, s.reference(e.FromID))
		}
	}
	return refs, nil
}

func (s *memRelationshipStore) reference(id uuid.UUID) domain.EntityReference {
	if e, ok := s.entities.byID[id]; ok {
		return e.Reference()
	}
	return domain.EntityReference{ID: id}
}

type memTimeSeriesStore struct {
	records []domain.TimeSeriesRecord
}

func (s *memTimeSeriesStore) Insert(ctx context.Context, record domain.TimeSeriesRecord) error {
	for _, r := range s.records {
		if r.EntityFQN == record.EntityFQN && r.Extension == record.Extension && r.Timestamp == record.Timestamp {
			return domain.NewConflict("record at %d already exists for %s/%s",
				record.Timestamp, record.EntityFQN, record.Extension)
		}
	}
	s.records = append(s.records, record)
	return nil
}

func (s *memTimeSeriesStore) AtTimestamp(ctx context.Context, fqn, extension string, timestamp int64) (json.RawMessage, error) {
	for _, r := range s.records {
		if r.EntityFQN == fqn && r.Extension == extension && r.Timestamp == timestamp {
			return r.Payload, nil
		}
	}
	return nil, domain.NewNotFound("no record at %d for %s/%s", timestamp, fqn, extension)
}

func (s *memTimeSeriesStore) Latest(ctx context.Context, fqn, extension string) (json.RawMessage, error) {
	var (
		best  domain.TimeSeriesRecord
		found bool
	)
	for _, r := range s.records {
		if r.EntityFQN == fqn && r.Extension == extension && (!found || r.Timestamp > best.Timestamp) {
			best, found = r, true
		}
	}
	if !found {
		return nil, domain.NewNotFound("no records for %s/%s", fqn, extension)
	}
	return best.Payload, nil
}

func (s *memTimeSeriesStore) Between(ctx context.Context, fqn, extension string, startTs, endTs int64, order domain.TimeSeriesOrder) ([]domain.TimeSeriesRecord, error) {
	var out []domain.TimeSeriesRecord
	for _, r := range s.records {
		if r.EntityFQN == fqn && r.Extension == extension && r.Timestamp >= startTs && r.Timestamp <= endTs {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if order == domain.OrderDescending {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

func (s *memTimeSeriesStore) DeleteAtTimestamp(ctx context.Context, fqn, extension string, timestamp int64) error {
	for i, r := range s.records {
		if r.EntityFQN == fqn && r.Extension == extension && r.Timestamp == timestamp {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return domain.NewNotFound("no record at %d for %s/%s", timestamp, fqn, extension)
}

func (s *memTimeSeriesStore) DeleteAll(ctx context.Context, fqn string) error {
	kept := s.records[:0]
	for _, r := range s.records {
		if r.EntityFQN != fqn {
			kept = append(kept, r)
		}
	}
	s.records = kept
	return nil
}

// memTxManager runs the function against the shared stores directly; the
// tests do not exercise rollback.
type memTxManager struct {
	stores repository.Stores
}

func (m *memTxManager) WithTx(ctx context.Context, fn func(repository.Stores) error) error {
	return fn(m.stores)
}

// captureSink records published events and optionally fails.
type captureSink struct {
	events []domain.ChangeEvent
	err    error
}

func (s *captureSink) Publish(ctx context.Context, event domain.ChangeEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}
