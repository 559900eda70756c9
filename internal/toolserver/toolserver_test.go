package toolserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/config"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/coordinator"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/eventbus"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphstore"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/indexer"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/parser"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/queryengine"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/semantic"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/storage"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/vectorindex"
)

const testDimensions = 32

func testCoordinatorConfig() config.CoordinatorConfig {
	return config.CoordinatorConfig{
		ParserConcurrency:      2,
		IndexerConcurrency:     2,
		QueryConcurrency:       2,
		SemanticConcurrency:    2,
		QueueCap:               20,
		TaskDeadline:           5 * time.Second,
		IndexingDeadline:       10 * time.Second,
		WatchdogInterval:       time.Second,
		StuckTaskThreshold:     10 * time.Second,
		HighWatermarkMB:        0,
		LowWatermarkMB:         0,
		ResourceSampleInterval: time.Second,
	}
}

func newTestServices(t *testing.T) (*Services, *graphstore.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "graph.db")

	engine, err := storage.Open(dbPath, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	store := graphstore.New(engine)
	vec, err := vectorindex.Open(context.Background(), engine, vectorindex.Options{Dimensions: testDimensions})
	if err != nil {
		t.Fatalf("open vector index: %v", err)
	}
	bus := eventbus.New()
	sem := semantic.New(store, vec, semantic.NewMemoryProvider(testDimensions), bus)

	p, err := parser.New(parser.Options{})
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	ix := indexer.New(p, store, bus, indexer.DefaultOptions())

	coord := coordinator.New(testCoordinatorConfig())
	t.Cleanup(func() { coord.Close() })

	return &Services{
		Coordinator: coord,
		Indexer:     ix,
		Store:       store,
		Vector:      vec,
		Query:       mustQueryEngine(t, store),
		Semantic:    sem,
		RootDir:     dir,
	}, store
}

func mustQueryEngine(t *testing.T, store *graphstore.Store) *queryengine.Engine {
	t.Helper()
	qe, err := queryengine.New(store, queryengine.Options{})
	if err != nil {
		t.Fatalf("new query engine: %v", err)
	}
	return qe
}

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRegistryListsAllToolNames(t *testing.T) {
	svc, _ := newTestServices(t)
	reg := NewEngineRegistry(svc)

	want := []string{
		"analyze_code_impact", "analyze_hotspots", "clean_index", "cross_language_search",
		"detect_code_clones", "find_related_concepts", "find_similar_code", "get_graph_health",
		"get_metrics", "index", "list_entity_relationships", "list_file_entities",
		"query", "reset_graph", "semantic_search", "suggest_refactoring",
	}
	got := reg.Names()
	if len(got) != len(want) {
		t.Fatalf("got %d tools, want %d: %v", len(got), len(want), got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("tool[%d] = %q, want %q", i, got[i], name)
		}
	}
}

func TestIndexToolIndexesDefaultRootDir(t *testing.T) {
	svc, store := newTestServices(t)
	writeSource(t, svc.RootDir, "a.go", "package a\n\nfunc F() {}\n")

	reg := NewEngineRegistry(svc)
	result, err := reg.Execute(context.Background(), "index", nil)
	if err != nil {
		t.Fatalf("execute index: %v", err)
	}
	out, ok := result.Result.(IndexOutput)
	if !ok {
		t.Fatalf("unexpected result type %T", result.Result)
	}
	if out.FilesIndexed != 1 {
		t.Fatalf("FilesIndexed = %d, want 1", out.FilesIndexed)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.EntityCount == 0 {
		t.Fatal("expected entities to be stored after indexing")
	}
}

func TestIndexToolForceFullReindexesViaIncrementalFalse(t *testing.T) {
	svc, _ := newTestServices(t)
	writeSource(t, svc.RootDir, "a.go", "package a\n\nfunc F() {}\n")
	reg := NewEngineRegistry(svc)
	ctx := context.Background()

	if _, err := reg.Execute(ctx, "index", nil); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	result, err := reg.Execute(ctx, "index", nil)
	if err != nil {
		t.Fatalf("incremental re-index: %v", err)
	}
	out := result.Result.(IndexOutput)
	if out.FilesIndexed != 0 || out.FilesSkipped != 1 {
		t.Fatalf("expected unchanged file skipped by default, got indexed=%d skipped=%d", out.FilesIndexed, out.FilesSkipped)
	}

	result, err = reg.Execute(ctx, "index", json.RawMessage(`{"incremental": false}`))
	if err != nil {
		t.Fatalf("force-full re-index: %v", err)
	}
	out = result.Result.(IndexOutput)
	if out.FilesIndexed != 1 || out.FilesSkipped != 0 {
		t.Fatalf("expected file reindexed when incremental=false, got indexed=%d skipped=%d", out.FilesIndexed, out.FilesSkipped)
	}
}

func TestIndexToolExcludePatterns(t *testing.T) {
	svc, _ := newTestServices(t)
	writeSource(t, svc.RootDir, "keep.go", "package a\n")
	fixturesDir := filepath.Join(svc.RootDir, "fixtures")
	if err := os.MkdirAll(fixturesDir, 0o755); err != nil {
		t.Fatalf("mkdir fixtures: %v", err)
	}
	writeSource(t, fixturesDir, "skip.go", "package f\n")
	reg := NewEngineRegistry(svc)

	result, err := reg.Execute(context.Background(), "index", json.RawMessage(`{"exclude_patterns": ["fixtures"]}`))
	if err != nil {
		t.Fatalf("execute index: %v", err)
	}
	out := result.Result.(IndexOutput)
	if out.FilesIndexed != 1 {
		t.Fatalf("FilesIndexed = %d, want 1 (fixtures excluded)", out.FilesIndexed)
	}
}

func TestListFileEntitiesToolRequiresFilePath(t *testing.T) {
	svc, _ := newTestServices(t)
	reg := NewEngineRegistry(svc)

	_, err := reg.Execute(context.Background(), "list_file_entities", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error for missing file_path")
	}
}

func TestResetGraphToolClearsStoreAndVectors(t *testing.T) {
	svc, store := newTestServices(t)
	writeSource(t, svc.RootDir, "a.go", "package a\n\nfunc F() {}\n")

	reg := NewEngineRegistry(svc)
	ctx := context.Background()
	if _, err := reg.Execute(ctx, "index", nil); err != nil {
		t.Fatalf("execute index: %v", err)
	}

	result, err := reg.Execute(ctx, "reset_graph", nil)
	if err != nil {
		t.Fatalf("execute reset_graph: %v", err)
	}
	out, ok := result.Result.(map[string]bool)
	if !ok || !out["success"] {
		t.Fatalf("unexpected reset_graph result: %#v", result.Result)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.EntityCount != 0 || stats.FileCount != 0 {
		t.Fatalf("expected empty store after reset, got %+v", stats)
	}
}

func TestSemanticSearchToolReturnsMatches(t *testing.T) {
	svc, store := newTestServices(t)
	ctx := context.Background()
	key := graphmodel.EntityKey{FilePath: "a.go", Type: graphmodel.EntityFunction, Name: "F", Start: 0, End: 10}
	ent := graphmodel.Entity{ID: graphmodel.EntityID(key), Name: "F", Type: graphmodel.EntityFunction, FilePath: "a.go"}
	if _, err := store.UpsertEntitiesBatch(ctx, []graphmodel.Entity{ent}, graphstore.DefaultBatchOptions()); err != nil {
		t.Fatalf("seed entity: %v", err)
	}
	if err := svc.Semantic.EmbedEntity(ctx, ent.ID); err != nil {
		t.Fatalf("embed entity: %v", err)
	}

	reg := NewEngineRegistry(svc)
	args, _ := json.Marshal(SemanticSearchInput{Query: "F", K: 5})
	result, err := reg.Execute(ctx, "semantic_search", args)
	if err != nil {
		t.Fatalf("execute semantic_search: %v", err)
	}
	matches, ok := result.Result.([]semantic.SearchResult)
	if !ok || len(matches) == 0 {
		t.Fatalf("expected at least one match, got %#v", result.Result)
	}
}

func TestGetGraphHealthToolReportsCounts(t *testing.T) {
	svc, store := newTestServices(t)
	ctx := context.Background()
	key := graphmodel.EntityKey{FilePath: "a.go", Type: graphmodel.EntityFunction, Name: "F", Start: 0, End: 10}
	ent := graphmodel.Entity{ID: graphmodel.EntityID(key), Name: "F", Type: graphmodel.EntityFunction, FilePath: "a.go"}
	if _, err := store.UpsertEntitiesBatch(ctx, []graphmodel.Entity{ent}, graphstore.DefaultBatchOptions()); err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	reg := NewEngineRegistry(svc)
	result, err := reg.Execute(ctx, "get_graph_health", nil)
	if err != nil {
		t.Fatalf("execute get_graph_health: %v", err)
	}
	stats, ok := result.Result.(graphstore.Stats)
	if !ok || stats.EntityCount != 1 {
		t.Fatalf("unexpected get_graph_health result: %#v", result.Result)
	}
}
