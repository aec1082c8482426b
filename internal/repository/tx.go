package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores bundles the three store contracts bound to one DBTX so a mutation
// can write its document, edges and extensions as a unit.
type Stores struct {
	Entities      EntityStore
	Relationships RelationshipStore
	TimeSeries    TimeSeriesStore
}

// NewStores builds pool- or tx-bound store implementations.
func NewStores(db DBTX) Stores {
	return Stores{
		Entities:      NewEntityStore(db),
		Relationships: NewRelationshipStore(db),
		TimeSeries:    NewTimeSeriesStore(db),
	}
}

// TxManager runs a function against stores bound to a single transaction.
// The entity-document write and the relationship-edge writes of one
// mutation always share a transaction.
type TxManager interface {
	WithTx(ctx context.Context, fn func(Stores) error) error
}

type pgTxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a pgx-backed transaction manager.
func NewTxManager(pool *pgxpool.Pool) TxManager {
	return &pgTxManager{pool: pool}
}

func (m *pgTxManager) WithTx(ctx context.Context, fn func(Stores) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback is a no-op after commit.
		_ = tx.Rollback(ctx)
	}()

	// pgx.Tx satisfies DBTX directly.
	if err := fn(NewStores(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
