package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/config"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/coordinator"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphstore"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/storage"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/vectorindex"
)

func TestCollectorSamplesStoreIntoGauges(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	engine, err := storage.Open(dbPath, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	defer engine.Close()

	store := graphstore.New(engine)
	vec, err := vectorindex.Open(ctx, engine, vectorindex.Options{Dimensions: 8})
	if err != nil {
		t.Fatalf("open vector index: %v", err)
	}

	key := graphmodel.EntityKey{FilePath: "a.go", Type: graphmodel.EntityFunction, Name: "F", Start: 0, End: 10}
	ent := graphmodel.Entity{ID: graphmodel.EntityID(key), Name: "F", Type: graphmodel.EntityFunction, FilePath: "a.go"}
	if _, err := store.UpsertEntitiesBatch(ctx, []graphmodel.Entity{ent}, graphstore.DefaultBatchOptions()); err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	coord := coordinator.New(config.CoordinatorConfig{
		ParserConcurrency: 1, IndexerConcurrency: 1, QueryConcurrency: 1, SemanticConcurrency: 1,
		QueueCap: 5, TaskDeadline: time.Second, IndexingDeadline: time.Second,
		WatchdogInterval: time.Second, StuckTaskThreshold: time.Second,
		ResourceSampleInterval: time.Second,
	})
	defer coord.Close()

	c := NewCollector(store, vec, coord, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(EntitiesTotal); got != 1 {
		t.Errorf("EntitiesTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(AgentPoolCapacity.WithLabelValues(string(coordinator.AgentParser))); got != 1 {
		t.Errorf("AgentPoolCapacity[parser] = %v, want 1", got)
	}
}

func TestCollectorStartStop(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	engine, err := storage.Open(dbPath, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	defer engine.Close()

	store := graphstore.New(engine)
	vec, err := vectorindex.Open(ctx, engine, vectorindex.Options{Dimensions: 8})
	if err != nil {
		t.Fatalf("open vector index: %v", err)
	}
	coord := coordinator.New(config.CoordinatorConfig{
		ParserConcurrency: 1, IndexerConcurrency: 1, QueryConcurrency: 1, SemanticConcurrency: 1,
		QueueCap: 5, TaskDeadline: time.Second, IndexingDeadline: time.Second,
		WatchdogInterval: time.Second, StuckTaskThreshold: time.Second,
		ResourceSampleInterval: time.Second,
	})
	defer coord.Close()

	c := NewCollector(store, vec, coord, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()
}
