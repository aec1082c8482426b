// Package search keeps a secondary search index in sync with the catalog:
// an event-driven path for live mutations and a paged backfill scan for
// convergence after sink or index outages.
package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rpattn/metacat/internal/domain"
)

// Document is one flattened, index-ready entity.
type Document struct {
	ID    string
	Index string
	Body  map[string]any
}

// IndexClient writes documents to the search backend. BulkUpsert is
// all-or-nothing from the caller's point of view: a failed bulk call
// counts the whole batch as failed.
type IndexClient interface {
	BulkUpsert(ctx context.Context, docs []Document) error
}

// RedisIndexClient stores documents as JSON values keyed by index and id,
// written in one pipeline round trip per batch.
type RedisIndexClient struct {
	client redis.UniversalClient
}

// NewRedisIndexClient wraps an established redis client.
func NewRedisIndexClient(client redis.UniversalClient) *RedisIndexClient {
	return &RedisIndexClient{client: client}
}

func (c *RedisIndexClient) BulkUpsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, doc := range docs {
		body, err := json.Marshal(doc.Body)
		if err != nil {
			return fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
		}
		pipe.Set(ctx, documentKey(doc.Index, doc.ID), body, 0)
		pipe.SAdd(ctx, indexKey(doc.Index), doc.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewExternalDependency(err, "bulk upsert of %d documents failed", len(docs))
	}
	return nil
}

// Delete removes a document and its index-membership entry.
func (c *RedisIndexClient) Delete(ctx context.Context, index, id string) error {
	pipe := c.client.Pipeline()
	pipe.Del(ctx, documentKey(index, id))
	pipe.SRem(ctx, indexKey(index), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewExternalDependency(err, "delete of document %s failed", id)
	}
	return nil
}

func documentKey(index, id string) string {
	return fmt.Sprintf("search:%s:doc:%s", index, id)
}

func indexKey(index string) string {
	return fmt.Sprintf("search:%s:ids", index)
}
