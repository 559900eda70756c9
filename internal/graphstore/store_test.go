package graphstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")
	engine, err := storage.Open(path, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return New(engine)
}

func sampleEntities(n int, filePath string) []graphmodel.Entity {
	out := make([]graphmodel.Entity, n)
	for i := 0; i < n; i++ {
		key := graphmodel.EntityKey{FilePath: filePath, Type: graphmodel.EntityFunction, Name: fmt.Sprintf("fn%d", i), Start: i * 10, End: i*10 + 5}
		out[i] = graphmodel.Entity{ID: graphmodel.EntityID(key), Name: key.Name, Type: key.Type, FilePath: filePath, Location: graphmodel.Location{Start: graphmodel.Position{Index: key.Start}, End: graphmodel.Position{Index: key.End}}}
	}
	return out
}

func TestUpsertEntitiesBatchIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entities := sampleEntities(10, "a.go")

	for i := 0; i < 3; i++ {
		if _, err := s.UpsertEntitiesBatch(ctx, entities, DefaultBatchOptions()); err != nil {
			t.Fatalf("batch %d: %v", i, err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.EntityCount != 10 {
		t.Fatalf("expected 10 entities after repeated identical upserts, got %d", stats.EntityCount)
	}
}

func TestUpsertEntitiesBatchIdenticalHashKeepsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entities := sampleEntities(1, "a.go")
	entities[0].Hash = "hash-v1"

	if _, err := s.UpsertEntitiesBatch(ctx, entities, DefaultBatchOptions()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	first, err := s.GetEntity(ctx, entities[0].ID)
	if err != nil {
		t.Fatalf("get entity after seed: %v", err)
	}

	time.Sleep(time.Millisecond)
	if _, err := s.UpsertEntitiesBatch(ctx, entities, DefaultBatchOptions()); err != nil {
		t.Fatalf("re-upsert identical hash: %v", err)
	}
	second, err := s.GetEntity(ctx, entities[0].ID)
	if err != nil {
		t.Fatalf("get entity after re-upsert: %v", err)
	}
	if !first.UpdatedAt.Equal(second.UpdatedAt) {
		t.Fatalf("updated_at advanced on identical-hash re-upsert: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}

	entities[0].Hash = "hash-v2"
	time.Sleep(time.Millisecond)
	if _, err := s.UpsertEntitiesBatch(ctx, entities, DefaultBatchOptions()); err != nil {
		t.Fatalf("re-upsert changed hash: %v", err)
	}
	third, err := s.GetEntity(ctx, entities[0].ID)
	if err != nil {
		t.Fatalf("get entity after hash change: %v", err)
	}
	if !third.UpdatedAt.After(second.UpdatedAt) {
		t.Fatalf("updated_at did not advance on hash change: %v -> %v", second.UpdatedAt, third.UpdatedAt)
	}
}

func TestUpsertEntitiesBatchDedupesWithinBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	one := sampleEntities(1, "a.go")
	batch := []graphmodel.Entity{one[0], one[0], one[0]}

	result, err := s.UpsertEntitiesBatch(ctx, batch, DefaultBatchOptions())
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("expected 1 processed after in-batch dedup, got %d", result.Processed)
	}
}

func TestUpsertRelationshipsCreatesPlaceholder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	from := sampleEntities(1, "a.go")
	if _, err := s.UpsertEntitiesBatch(ctx, from, DefaultBatchOptions()); err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	rel := graphmodel.Relationship{FromID: from[0].ID, ToID: "missing-entity-id", Type: graphmodel.RelImports}
	rel.ID = graphmodel.RelationshipID(rel.Key())

	if _, err := s.UpsertRelationshipsBatch(ctx, []graphmodel.Relationship{rel}, DefaultBatchOptions()); err != nil {
		t.Fatalf("upsert relationship: %v", err)
	}

	placeholder, err := s.GetEntity(ctx, "missing-entity-id")
	if err != nil {
		t.Fatalf("expected placeholder entity to exist: %v", err)
	}
	if placeholder.Type != graphmodel.EntityExternal {
		t.Fatalf("expected placeholder type external, got %s", placeholder.Type)
	}

	rels, err := s.GetRelationshipsFor(ctx, from[0].ID, "")
	if err != nil {
		t.Fatalf("get relationships: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(rels))
	}
}

func TestDeleteEntitiesByFileIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entities := sampleEntities(3, "a.go")
	if _, err := s.UpsertEntitiesBatch(ctx, entities, DefaultBatchOptions()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rel := graphmodel.Relationship{FromID: entities[0].ID, ToID: entities[1].ID, Type: graphmodel.RelCalls}
	rel.ID = graphmodel.RelationshipID(rel.Key())
	if _, err := s.UpsertRelationshipsBatch(ctx, []graphmodel.Relationship{rel}, DefaultBatchOptions()); err != nil {
		t.Fatalf("seed relationship: %v", err)
	}

	if err := s.DeleteEntitiesByFile(ctx, "a.go"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.EntityCount != 0 || stats.RelationshipCount != 0 {
		t.Fatalf("expected 0/0 after delete, got entities=%d relationships=%d", stats.EntityCount, stats.RelationshipCount)
	}
}

func TestFileReindexPurity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entities := sampleEntities(5, "a.go")

	if _, err := s.UpsertEntitiesBatch(ctx, entities, DefaultBatchOptions()); err != nil {
		t.Fatalf("first index: %v", err)
	}
	if err := s.DeleteEntitiesByFile(ctx, "a.go"); err != nil {
		t.Fatalf("purge before reindex: %v", err)
	}
	if _, err := s.UpsertEntitiesBatch(ctx, entities, DefaultBatchOptions()); err != nil {
		t.Fatalf("second index: %v", err)
	}

	got, err := s.FindEntities(ctx, EntityFilter{FilePath: "a.go"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != len(entities) {
		t.Fatalf("expected %d entities after reindex, got %d", len(entities), len(got))
	}
}

func TestStatsReportsDatabaseSizeAndCacheHitRate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entities := sampleEntities(5, "a.go")
	if _, err := s.UpsertEntitiesBatch(ctx, entities, DefaultBatchOptions()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := s.GetEntity(ctx, entities[0].ID); err != nil {
		t.Fatalf("get entity (miss): %v", err)
	}
	if _, err := s.GetEntity(ctx, entities[0].ID); err != nil {
		t.Fatalf("get entity (hit): %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.DatabaseSizeBytes <= 0 {
		t.Fatalf("expected positive database size, got %d", stats.DatabaseSizeBytes)
	}
	if stats.EntityCacheHitRate <= 0 || stats.EntityCacheHitRate > 1 {
		t.Fatalf("expected a hit rate in (0,1], got %v", stats.EntityCacheHitRate)
	}
}

func TestGetEntityCacheInvalidatedOnUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entities := sampleEntities(1, "a.go")
	entities[0].Hash = "hash-v1"
	if _, err := s.UpsertEntitiesBatch(ctx, entities, DefaultBatchOptions()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := s.GetEntity(ctx, entities[0].ID); err != nil {
		t.Fatalf("get entity (populate cache): %v", err)
	}

	entities[0].Name = "renamed"
	if _, err := s.UpsertEntitiesBatch(ctx, entities, DefaultBatchOptions()); err != nil {
		t.Fatalf("re-upsert with new name: %v", err)
	}

	got, err := s.GetEntity(ctx, entities[0].ID)
	if err != nil {
		t.Fatalf("get entity after rename: %v", err)
	}
	if got.Name != "renamed" {
		t.Fatalf("expected cache to reflect the rename, got stale name %q", got.Name)
	}
}
