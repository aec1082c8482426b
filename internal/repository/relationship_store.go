package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/metacat/internal/domain"
)

// relationshipStore implements RelationshipStore on Postgres. The single
// containment parent invariant is enforced by the partial unique index
// entity_relationship_single_parent; a violation maps to DataIntegrity.
type relationshipStore struct {
	db DBTX
}

// NewRelationshipStore creates a Postgres-backed relationship edge store.
func NewRelationshipStore(db DBTX) RelationshipStore {
	return &relationshipStore{db: db}
}

func (s *relationshipStore) Insert(ctx context.Context, edge domain.EntityRelationship) error {
	// The NOT EXISTS guard makes re-adding an identical edge a no-op while
	// still letting a second containment parent trip the partial unique
	// index.
	_, err := s.db.Exec(ctx, `
		INSERT INTO entity_relationship (from_id, from_type, to_id, to_type, relation)
		SELECT $1, $2, $3, $4, $5
		WHERE NOT EXISTS (
			SELECT 1 FROM entity_relationship
			WHERE from_id = $1 AND to_id = $3 AND relation = $5
		)`,
		edge.FromID, edge.FromType, edge.ToID, edge.ToType, edge.Relation,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.NewDataIntegrity("entity %s already has a containment parent", edge.ToID)
		}
		return fmt.Errorf("failed to insert relationship: %w", err)
	}
	return nil
}

func (s *relationshipStore) Remove(ctx context.Context, edge domain.EntityRelationship) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM entity_relationship
		WHERE from_id = $1 AND to_id = $2 AND relation = $3`,
		edge.FromID, edge.ToID, edge.Relation,
	)
	if err != nil {
		return fmt.Errorf("failed to remove relationship: %w", err)
	}
	return nil
}

func (s *relationshipStore) RemoveAll(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, "DELETE FROM entity_relationship WHERE from_id = $1 OR to_id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to remove relationships for %s: %w", id, err)
	}
	return nil
}

func (s *relationshipStore) FindTo(ctx context.Context, fromID uuid.UUID, relation domain.Relationship, toType string) ([]domain.EntityReference, error) {
	rows, err := s.db.Query(ctx, `
		SELECT to_id, to_type FROM entity_relationship
		WHERE from_id = $1 AND relation = $2 AND ($3 = '' OR to_type = $3)
		ORDER BY to_id`,
		fromID, relation, toType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outgoing relationships: %w", err)
	}
	defer rows.Close()
	return scanReferences(rows)
}

func (s *relationshipStore) FindFrom(ctx context.Context, toID uuid.UUID, relation domain.Relationship, fromType string) ([]domain.EntityReference, error) {
	rows, err := s.db.Query(ctx, `
		SELECT from_id, from_type FROM entity_relationship
		WHERE to_id = $1 AND relation = $2 AND ($3 = '' OR from_type = $3)
		ORDER BY from_id`,
		toID, relation, fromType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query incoming relationships: %w", err)
	}
	defer rows.Close()
	return scanReferences(rows)
}

func scanReferences(rows pgx.Rows) ([]domain.EntityReference, error) {
	var refs []domain.EntityReference
	for rows.Next() {
		var ref domain.EntityReference
		if err := rows.Scan(&ref.ID, &ref.Type); err != nil {
			return nil, fmt.Errorf("failed to scan relationship row: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read relationship rows: %w", err)
	}
	return refs, nil
}
