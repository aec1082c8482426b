package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/metacat/internal/domain"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so stores can run
// standalone or inside the engine's mutation transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

// entityStore implements EntityStore on Postgres.
type entityStore struct {
	db DBTX
}

// NewEntityStore creates a Postgres-backed entity document store.
func NewEntityStore(db DBTX) EntityStore {
	return &entityStore{db: db}
}

const entityColumns = "id, entity_type, name, fqn, version, updated_by, updated_at, deleted, fields"

func (s *entityStore) Load(ctx context.Context, id uuid.UUID, include domain.Include) (domain.Entity, error) {
	row := s.db.QueryRow(ctx, "SELECT "+entityColumns+" FROM catalog_entity WHERE id = $1", id)
	return scanEntity(row, include, id.String())
}

func (s *entityStore) LoadByName(ctx context.Context, fqn string, include domain.Include) (domain.Entity, error) {
	row := s.db.QueryRow(ctx, "SELECT "+entityColumns+" FROM catalog_entity WHERE fqn = $1", fqn)
	return scanEntity(row, include, fqn)
}

func (s *entityStore) Insert(ctx context.Context, entity domain.Entity) error {
	fieldsJSON, err := json.Marshal(entity.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal entity fields: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO catalog_entity (id, entity_type, name, fqn, version, updated_by, updated_at, deleted, fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entity.ID, entity.Type, entity.Name, entity.FullyQualifiedName,
		entity.Version, entity.UpdatedBy, entity.UpdatedAt, entity.Deleted, fieldsJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.NewConflict("entity %q already exists", entity.FullyQualifiedName)
		}
		return fmt.Errorf("failed to insert entity: %w", err)
	}
	return nil
}

func (s *entityStore) Update(ctx context.Context, entity domain.Entity, expectedVersion float64) error {
	fieldsJSON, err := json.Marshal(entity.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal entity fields: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE catalog_entity
		SET name = $2, fqn = $3, version = $4, updated_by = $5, updated_at = $6, deleted = $7, fields = $8
		WHERE id = $1 AND version = $9`,
		entity.ID, entity.Name, entity.FullyQualifiedName, entity.Version,
		entity.UpdatedBy, entity.UpdatedAt, entity.Deleted, fieldsJSON, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a stale version.
		var exists bool
		if err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM catalog_entity WHERE id = $1)", entity.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check entity existence: %w", err)
		}
		if !exists {
			return domain.NewNotFound("entity %s not found", entity.ID)
		}
		return domain.NewConflict("entity %s changed since version %.1f was read", entity.ID, expectedVersion)
	}
	return nil
}

func (s *entityStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM catalog_entity WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("entity %s not found", id)
	}
	return nil
}

func (s *entityStore) ListByType(ctx context.Context, entityType string, include domain.Include, afterName string, limit int) ([]domain.Entity, error) {
	// The inclusion policy is part of the query so LIMIT counts only
	// visible rows; a short page means end of data, which pagers rely on.
	rows, err := s.db.Query(ctx, `
		SELECT `+entityColumns+`
		FROM catalog_entity
		WHERE entity_type = $1 AND fqn > $2
		  AND ($4 = 'all' OR deleted = ($4 = 'deleted'))
		ORDER BY fqn
		LIMIT $3`,
		entityType, afterName, limit, string(include),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities by type: %w", err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		entity, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entity rows: %w", err)
	}
	return entities, nil
}

func scanEntity(row pgx.Row, include domain.Include, key string) (domain.Entity, error) {
	entity, err := scanEntityRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, domain.NewNotFound("entity %q not found", key)
		}
		return domain.Entity{}, err
	}
	if !include.Matches(entity.Deleted) {
		return domain.Entity{}, domain.NewNotFound("entity %q not found", key)
	}
	return entity, nil
}

func scanEntityRow(row pgx.Row) (domain.Entity, error) {
	var (
		entity     domain.Entity
		updatedAt  time.Time
		fieldsJSON []byte
	)
	err := row.Scan(
		&entity.ID, &entity.Type, &entity.Name, &entity.FullyQualifiedName,
		&entity.Version, &entity.UpdatedBy, &updatedAt, &entity.Deleted, &fieldsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, err
		}
		return domain.Entity{}, fmt.Errorf("failed to scan entity row: %w", err)
	}
	entity.UpdatedAt = updatedAt
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &entity.Fields); err != nil {
			return domain.Entity{}, fmt.Errorf("failed to decode fields for entity %s: %w", entity.ID, err)
		}
	}
	return entity, nil
}
