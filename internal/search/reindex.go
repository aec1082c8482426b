package search

import (
	"context"
	"log/slog"

	"github.com/rpattn/metacat/internal/domain"
	"github.com/rpattn/metacat/internal/repository"
)

const defaultBatchSize = 100

// Reindexer backfills the search index by scanning the entity store in
// fully-qualified-name order and feeding fixed-size batches to the
// processor.
type Reindexer struct {
	entities  repository.EntityStore
	processor *Processor
	batchSize int
	log       *slog.Logger
}

// NewReindexer creates a backfill scanner. batchSize <= 0 selects the
// default.
func NewReindexer(entities repository.EntityStore, processor *Processor, batchSize int, log *slog.Logger) *Reindexer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Reindexer{
		entities:  entities,
		processor: processor,
		batchSize: batchSize,
		log:       log,
	}
}

// Reindex pages through every entity of one type, soft-deleted rows
// included, and stops at the first failed batch. It returns the processor
// counters accumulated so far either way.
func (r *Reindexer) Reindex(ctx context.Context, entityType string) (Stats, error) {
	afterName := ""
	for {
		batch, err := r.entities.ListByType(ctx, entityType, domain.IncludeAll, afterName, r.batchSize)
		if err != nil {
			return r.processor.Stats(), err
		}
		if len(batch) == 0 {
			break
		}
		if err := r.processor.Process(ctx, batch); err != nil {
			return r.processor.Stats(), err
		}
		r.log.Info("reindexed batch",
			"entityType", entityType, "batchSize", len(batch), "after", afterName)
		afterName = batch[len(batch)-1].FullyQualifiedName
		if len(batch) < r.batchSize {
			break
		}
	}
	return r.processor.Stats(), nil
}
