package search

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rpattn/metacat/internal/domain"
)

// Stats is a snapshot of the processor's monotonic batch counters. A batch
// either fully succeeds or fully fails; counters never decrease.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Success   int64 `json:"success"`
	Failed    int64 `json:"failed"`
}

// StepStats accumulates counters across batches.
type StepStats struct {
	mu    sync.Mutex
	stats Stats
}

func (s *StepStats) record(submitted, success, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Submitted += int64(submitted)
	s.stats.Success += int64(success)
	s.stats.Failed += int64(failed)
}

// Snapshot returns the current counter values.
func (s *StepStats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// DocumentBuilder turns one entity into its index document.
type DocumentBuilder interface {
	Build(entity domain.Entity) (Document, error)
}

// BuilderFunc adapts a function to the DocumentBuilder interface.
type BuilderFunc func(entity domain.Entity) (Document, error)

func (f BuilderFunc) Build(entity domain.Entity) (Document, error) {
	return f(entity)
}

// FlattenBuilder is the default document shape: envelope attributes plus
// the payload fields flattened into one map, indexed under the entity
// type.
func FlattenBuilder(entity domain.Entity) (Document, error) {
	body := map[string]any{
		"id":                 entity.ID.String(),
		"entityType":         entity.Type,
		"name":               entity.Name,
		"fullyQualifiedName": entity.FullyQualifiedName,
		"version":            entity.Version,
		"deleted":            entity.Deleted,
	}
	for name, value := range entity.Fields {
		if ref, ok := domain.RefField(value); ok {
			body[name] = ref.String()
			continue
		}
		body[name] = value
	}
	return Document{
		ID:    entity.ID.String(),
		Index: entity.Type,
		Body:  body,
	}, nil
}

// Processor converts entity batches to documents and bulk-writes them,
// tracking batch-level statistics.
type Processor struct {
	client   IndexClient
	builders map[string]DocumentBuilder
	stats    StepStats
	log      *slog.Logger
}

// NewProcessor creates a processor using FlattenBuilder for any entity
// type without a registered builder.
func NewProcessor(client IndexClient, log *slog.Logger) *Processor {
	return &Processor{
		client:   client,
		builders: make(map[string]DocumentBuilder),
		log:      log,
	}
}

// RegisterBuilder overrides the document shape for one entity type.
func (p *Processor) RegisterBuilder(entityType string, builder DocumentBuilder) {
	p.builders[entityType] = builder
}

// Stats returns a snapshot of the processor counters.
func (p *Processor) Stats() Stats {
	return p.stats.Snapshot()
}

// Process converts and bulk-writes one batch. The whole batch is counted
// as submitted up front; a failed bulk call counts every record as failed
// and returns an ExternalDependency error, a successful one counts every
// record as succeeded. There is no per-record partial accounting.
func (p *Processor) Process(ctx context.Context, entities []domain.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	docs := make([]Document, 0, len(entities))
	for _, entity := range entities {
		builder, ok := p.builders[entity.Type]
		if !ok {
			builder = BuilderFunc(FlattenBuilder)
		}
		doc, err := builder.Build(entity)
		if err != nil {
			p.stats.record(len(entities), 0, len(entities))
			return domain.NewExternalDependency(err, "failed to build document for %s", entity.FullyQualifiedName)
		}
		docs = append(docs, doc)
	}

	if err := p.client.BulkUpsert(ctx, docs); err != nil {
		p.stats.record(len(entities), 0, len(entities))
		p.log.Error("bulk upsert failed", "batchSize", len(entities), "error", err)
		if domain.IsExternalDependency(err) {
			return err
		}
		return domain.NewExternalDependency(err, "bulk upsert of %d documents failed", len(docs))
	}

	p.stats.record(len(entities), len(entities), 0)
	return nil
}
