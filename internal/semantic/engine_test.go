package semantic

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/eventbus"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphstore"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/storage"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/vectorindex"
)

const testDimensions = 32

func newTestEngine(t *testing.T) (*Engine, *graphstore.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")
	dbEngine, err := storage.Open(path, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { dbEngine.Close() })

	store := graphstore.New(dbEngine)
	idx, err := vectorindex.Open(context.Background(), dbEngine, vectorindex.Options{Dimensions: testDimensions})
	if err != nil {
		t.Fatalf("open vector index: %v", err)
	}
	return New(store, idx, NewMemoryProvider(testDimensions), eventbus.New()), store
}

func seedEntity(t *testing.T, store *graphstore.Store, name, filePath string, complexity float64) graphmodel.Entity {
	t.Helper()
	key := graphmodel.EntityKey{FilePath: filePath, Type: graphmodel.EntityFunction, Name: name, Start: 0, End: 10}
	ent := graphmodel.Entity{
		ID: graphmodel.EntityID(key), Name: name, Type: graphmodel.EntityFunction, FilePath: filePath,
		ComplexityScore: complexity,
		Metadata:        map[string]any{"signature": fmt.Sprintf("func %s()", name)},
	}
	if _, err := store.UpsertEntitiesBatch(context.Background(), []graphmodel.Entity{ent}, graphstore.DefaultBatchOptions()); err != nil {
		t.Fatalf("seed entity: %v", err)
	}
	return ent
}

func TestMemoryProviderIsDeterministic(t *testing.T) {
	p := NewMemoryProvider(testDimensions)
	a, _ := p.Embed(context.Background(), "hello world")
	b, _ := p.Embed(context.Background(), "hello world")
	if len(a) != testDimensions || len(b) != testDimensions {
		t.Fatalf("expected %d-dim vectors, got %d and %d", testDimensions, len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical vectors for identical input at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestEmbedEntityAndSemanticSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t)
	ent := seedEntity(t, store, "ParseFile", "parser.go", 3)

	if err := e.EmbedEntity(ctx, ent.ID); err != nil {
		t.Fatalf("embed entity: %v", err)
	}

	results, err := e.SemanticSearch(ctx, "func ParseFile()", 5)
	if err != nil {
		t.Fatalf("semantic search: %v", err)
	}
	if len(results) == 0 || results[0].Entity.ID != ent.ID {
		t.Fatalf("expected ParseFile to be the top hit, got %+v", results)
	}
}

func TestFindRelatedConceptsExcludesSelf(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t)
	a := seedEntity(t, store, "Alpha", "a.go", 1)
	b := seedEntity(t, store, "Beta", "b.go", 1)

	if err := e.EmbedEntity(ctx, a.ID); err != nil {
		t.Fatalf("embed a: %v", err)
	}
	if err := e.EmbedEntity(ctx, b.ID); err != nil {
		t.Fatalf("embed b: %v", err)
	}

	related, err := e.FindRelatedConcepts(ctx, a.ID, 5)
	if err != nil {
		t.Fatalf("find related: %v", err)
	}
	for _, r := range related {
		if r.Entity.ID == a.ID {
			t.Fatalf("expected self to be excluded from related concepts, got %+v", related)
		}
	}
}

func TestHybridRankBoostsDualSignal(t *testing.T) {
	dualSignal := HybridRank(0.8, 0.6)
	singleSignal := HybridRank(0.8, 0)
	expectedDual := (0.6*0.8 + 0.4*0.6) * 1.2
	if dualSignal != expectedDual {
		t.Fatalf("expected dual-signal boost %.4f, got %.4f", expectedDual, dualSignal)
	}
	if singleSignal != 0.6*0.8 {
		t.Fatalf("expected no boost without a semantic signal, got %.4f", singleSignal)
	}
}

func TestDetectCodeClonesGroupsSimilarEntities(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t)

	// Two entities with byte-identical semantic text (same type, name,
	// file and signature; different spans) collapse to the same
	// deterministic vector, guaranteeing similarity 1.0.
	a := seedEntity(t, store, "DoWork", "a.go", 1)
	bKey := graphmodel.EntityKey{FilePath: "a.go", Type: graphmodel.EntityFunction, Name: "DoWork", Start: 20, End: 30}
	b := graphmodel.Entity{
		ID: graphmodel.EntityID(bKey), Name: "DoWork", Type: graphmodel.EntityFunction, FilePath: "a.go",
		ComplexityScore: 1,
		Metadata:        map[string]any{"signature": "func DoWork()"},
	}
	if _, err := store.UpsertEntitiesBatch(ctx, []graphmodel.Entity{b}, graphstore.DefaultBatchOptions()); err != nil {
		t.Fatalf("seed entity: %v", err)
	}
	if err := e.EmbedEntity(ctx, a.ID); err != nil {
		t.Fatalf("embed a: %v", err)
	}
	if err := e.EmbedEntity(ctx, b.ID); err != nil {
		t.Fatalf("embed b: %v", err)
	}

	clusters, err := e.DetectCodeClones(ctx, 0.99, []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("detect clones: %v", err)
	}
	if len(clusters) != 1 || len(clusters[0].EntityIDs) != 2 {
		t.Fatalf("expected one 2-entity cluster, got %+v", clusters)
	}
}

func TestCircuitBreakerFallsBackAfterConsecutiveFailures(t *testing.T) {
	failing := &alwaysFailProvider{dimensions: testDimensions}
	fallback := NewMemoryProvider(testDimensions)
	b := newCircuitBreaker(failing, fallback)

	var lastErr error
	for i := 0; i < FailureThreshold; i++ {
		_, lastErr = b.Embed(context.Background(), "x")
	}
	if lastErr != nil {
		t.Fatalf("expected fallback to absorb primary failures, got %v", lastErr)
	}
	if !b.tripped() {
		t.Fatal("expected breaker to be tripped after consecutive failures")
	}
}

type alwaysFailProvider struct {
	dimensions int
}

func (p *alwaysFailProvider) Name() string    { return "always-fail" }
func (p *alwaysFailProvider) Dimensions() int { return p.dimensions }
func (p *alwaysFailProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("simulated failure")
}
func (p *alwaysFailProvider) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("simulated failure")
}
