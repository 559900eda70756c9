package queryengine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphstore"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *graphstore.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")
	engine, err := storage.Open(path, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	store := graphstore.New(engine)
	qe, err := New(store, Options{})
	if err != nil {
		t.Fatalf("new query engine: %v", err)
	}
	return qe, store
}

func key(filePath, typ, name string, start, end int) graphmodel.EntityKey {
	return graphmodel.EntityKey{FilePath: filePath, Type: graphmodel.EntityType(typ), Name: name, Start: start, End: end}
}

func entity(filePath, typ, name string, start, end int, complexity float64) graphmodel.Entity {
	k := key(filePath, typ, name, start, end)
	return graphmodel.Entity{
		ID: graphmodel.EntityID(k), Name: name, Type: k.Type, FilePath: filePath,
		Location:        graphmodel.Location{Start: graphmodel.Position{Index: start}, End: graphmodel.Position{Index: end}},
		ComplexityScore: complexity,
	}
}

func TestListFileEntitiesFiltersByTypeAndCaches(t *testing.T) {
	ctx := context.Background()
	qe, store := newTestEngine(t)

	entities := []graphmodel.Entity{
		entity("a.go", "function", "F", 0, 10, 1),
		entity("a.go", "struct", "S", 10, 20, 1),
		entity("b.go", "function", "G", 0, 10, 1),
	}
	if _, err := store.UpsertEntitiesBatch(ctx, entities, graphstore.DefaultBatchOptions()); err != nil {
		t.Fatalf("seed entities: %v", err)
	}

	res, err := qe.ListFileEntities(ctx, ListFileEntitiesRequest{FilePath: "a.go", Types: []graphmodel.EntityType{graphmodel.EntityFunction}})
	if err != nil {
		t.Fatalf("list file entities: %v", err)
	}
	if len(res) != 1 || res[0].Name != "F" {
		t.Fatalf("expected only F, got %+v", res)
	}

	if qe.cache.Len() != 1 {
		t.Fatalf("expected result to be cached, cache len=%d", qe.cache.Len())
	}
}

func TestAnalyzeHotspotsByComplexityOrdersDescendingWithTieBreak(t *testing.T) {
	ctx := context.Background()
	qe, store := newTestEngine(t)

	entities := []graphmodel.Entity{
		entity("a.go", "function", "Low", 0, 10, 1),
		entity("a.go", "function", "High", 10, 20, 9),
		entity("a.go", "function", "TieA", 20, 30, 5),
		entity("a.go", "function", "TieB", 30, 40, 5),
	}
	if _, err := store.UpsertEntitiesBatch(ctx, entities, graphstore.DefaultBatchOptions()); err != nil {
		t.Fatalf("seed entities: %v", err)
	}

	res, err := qe.AnalyzeHotspots(ctx, AnalyzeHotspotsRequest{Metric: MetricComplexity, Limit: 10})
	if err != nil {
		t.Fatalf("analyze hotspots: %v", err)
	}
	if len(res) != 4 {
		t.Fatalf("expected 4 hotspots, got %d", len(res))
	}
	if res[0].Entity.Name != "High" {
		t.Fatalf("expected High first, got %s", res[0].Entity.Name)
	}
	// TieA/TieB share score 5; tie-break is ascending entity ID.
	if res[1].Score != 5 || res[2].Score != 5 {
		t.Fatalf("expected tied entries at positions 1/2, got %+v", res)
	}
	if res[1].Entity.ID >= res[2].Entity.ID {
		t.Fatalf("expected ascending ID tie-break, got %s then %s", res[1].Entity.ID, res[2].Entity.ID)
	}
}

func TestAnalyzeCodeImpactWalksReverseEdges(t *testing.T) {
	ctx := context.Background()
	qe, store := newTestEngine(t)

	target := entity("a.go", "function", "Target", 0, 10, 1)
	caller := entity("a.go", "function", "Caller", 10, 20, 1)
	if _, err := store.UpsertEntitiesBatch(ctx, []graphmodel.Entity{target, caller}, graphstore.DefaultBatchOptions()); err != nil {
		t.Fatalf("seed entities: %v", err)
	}
	rel := graphmodel.Relationship{
		ID: graphmodel.RelationshipID(graphmodel.RelationshipKey{FromID: caller.ID, ToID: target.ID, Type: graphmodel.RelCalls}),
		FromID: caller.ID, ToID: target.ID, Type: graphmodel.RelCalls, Weight: 1,
	}
	if _, err := store.UpsertRelationshipsBatch(ctx, []graphmodel.Relationship{rel}, graphstore.DefaultBatchOptions()); err != nil {
		t.Fatalf("seed relationship: %v", err)
	}

	impacted, err := qe.AnalyzeCodeImpact(ctx, AnalyzeCodeImpactRequest{EntityID: target.ID, Depth: 2})
	if err != nil {
		t.Fatalf("analyze code impact: %v", err)
	}
	if len(impacted) != 1 || impacted[0].ID != caller.ID {
		t.Fatalf("expected caller to be impacted, got %+v", impacted)
	}
}

func TestGetSubgraphDelegatesToStore(t *testing.T) {
	ctx := context.Background()
	qe, store := newTestEngine(t)

	root := entity("a.go", "function", "Root", 0, 10, 1)
	if _, err := store.UpsertEntitiesBatch(ctx, []graphmodel.Entity{root}, graphstore.DefaultBatchOptions()); err != nil {
		t.Fatalf("seed entities: %v", err)
	}

	nodes, err := qe.GetSubgraph(ctx, GetSubgraphRequest{EntityID: root.ID, Depth: 2})
	if err != nil {
		t.Fatalf("get subgraph: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Entity.ID != root.ID {
		t.Fatalf("expected single root node, got %+v", nodes)
	}
}
