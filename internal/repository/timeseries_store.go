package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/metacat/internal/domain"
)

// timeSeriesStore implements TimeSeriesStore on Postgres. Records are
// append-only; the primary key (entity_fqn, extension, ts) rejects
// duplicate timestamps.
type timeSeriesStore struct {
	db DBTX
}

// NewTimeSeriesStore creates a Postgres-backed time-series extension store.
func NewTimeSeriesStore(db DBTX) TimeSeriesStore {
	return &timeSeriesStore{db: db}
}

func (s *timeSeriesStore) Insert(ctx context.Context, record domain.TimeSeriesRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO entity_extension_time_series (entity_fqn, extension, ts, payload)
		VALUES ($1, $2, $3, $4)`,
		record.EntityFQN, record.Extension, record.Timestamp, []byte(record.Payload),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.NewConflict("record for %s/%s at %d already exists",
				record.EntityFQN, record.Extension, record.Timestamp)
		}
		return fmt.Errorf("failed to insert time-series record: %w", err)
	}
	return nil
}

func (s *timeSeriesStore) AtTimestamp(ctx context.Context, fqn, extension string, timestamp int64) (json.RawMessage, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `
		SELECT payload FROM entity_extension_time_series
		WHERE entity_fqn = $1 AND extension = $2 AND ts = $3`,
		fqn, extension, timestamp,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFound("no %s record for %s at %d", extension, fqn, timestamp)
		}
		return nil, fmt.Errorf("failed to load time-series record: %w", err)
	}
	return payload, nil
}

func (s *timeSeriesStore) Latest(ctx context.Context, fqn, extension string) (json.RawMessage, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `
		SELECT payload FROM entity_extension_time_series
		WHERE entity_fqn = $1 AND extension = $2
		ORDER BY ts DESC
		LIMIT 1`,
		fqn, extension,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFound("no %s records for %s", extension, fqn)
		}
		return nil, fmt.Errorf("failed to load latest time-series record: %w", err)
	}
	return payload, nil
}

func (s *timeSeriesStore) Between(ctx context.Context, fqn, extension string, startTs, endTs int64, order domain.TimeSeriesOrder) ([]domain.TimeSeriesRecord, error) {
	direction := "ASC"
	if order == domain.OrderDescending {
		direction = "DESC"
	}
	rows, err := s.db.Query(ctx, `
		SELECT ts, payload FROM entity_extension_time_series
		WHERE entity_fqn = $1 AND extension = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts `+direction,
		fqn, extension, startTs, endTs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query time-series range: %w", err)
	}
	defer rows.Close()

	var records []domain.TimeSeriesRecord
	for rows.Next() {
		record := domain.TimeSeriesRecord{EntityFQN: fqn, Extension: extension}
		var payload []byte
		if err := rows.Scan(&record.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan time-series row: %w", err)
		}
		record.Payload = payload
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read time-series rows: %w", err)
	}
	return records, nil
}

func (s *timeSeriesStore) DeleteAtTimestamp(ctx context.Context, fqn, extension string, timestamp int64) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM entity_extension_time_series
		WHERE entity_fqn = $1 AND extension = $2 AND ts = $3`,
		fqn, extension, timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to delete time-series record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("no %s record for %s at %d", extension, fqn, timestamp)
	}
	return nil
}

func (s *timeSeriesStore) DeleteAll(ctx context.Context, fqn string) error {
	_, err := s.db.Exec(ctx, "DELETE FROM entity_extension_time_series WHERE entity_fqn = $1", fqn)
	if err != nil {
		return fmt.Errorf("failed to delete time-series records for %s: %w", fqn, err)
	}
	return nil
}
