// Package vectorindex stores dense vectors tied to graph entities and
// answers k-NN search requests. Two backends exist, selected at
// startup: a primary ANN-indexed virtual table (sqlite-vec, behind the
// sqlite_vec+cgo build tag, grounded on the source's init_vec.go) and a
// cgo-free fallback that stores vectors as float32 BLOBs and ranks them
// by in-process cosine similarity, grounded on the source's
// vec_compat.go distance math and embedding.FindTopK's top-K selection.
package vectorindex

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/storage"
)

// Backend names reported by Stats and selected via config.
const (
	BackendSQLiteVec = "sqlite_vec"
	BackendFallback  = "fallback"
)

// Match is one k-NN search hit.
type Match struct {
	EntityID string
	Score    float64
}

// Index is the Vector Index component. Dimensions are fixed at Open
// time; subsequent inserts with a mismatched dimension are rejected.
type Index struct {
	engine     *storage.Engine
	dimensions int
	backend    string
	primary    primaryBackend // nil when running fallback-only
	cache      *lru.Cache     // query-vector -> []Match, bounded

	// searchCount and searchTotalNanos accumulate Search's wall-clock
	// latency (cache hits included) so Stats can report a running
	// average without a separate sampling goroutine.
	searchCount      atomic.Int64
	searchTotalNanos atomic.Int64
}

// primaryBackend is implemented by the build-tag-gated sqlite-vec file;
// when that file isn't compiled in, primary stays nil and Index runs
// fallback-only.
type primaryBackend interface {
	Upsert(ctx context.Context, entityID, model string, vector []float32) error
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
	DeleteByEntity(ctx context.Context, entityID string) error
	Available() bool
}

// Options configure Open.
type Options struct {
	Dimensions   int
	CacheEntries int
	PreferPrimary bool
}

// Open constructs an Index bound to engine. If PreferPrimary is set and
// a primary backend was compiled in (sqlite_vec build tag) and
// initializes successfully, it is used; otherwise the engine degrades
// to fallback silently, logging a warning, matching the contract that a
// failed primary load never interrupts service.
func Open(ctx context.Context, engine *storage.Engine, opts Options) (*Index, error) {
	if opts.Dimensions <= 0 {
		opts.Dimensions = 768
	}
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = 256
	}
	cache, err := lru.New(opts.CacheEntries)
	if err != nil {
		return nil, graphmodel.NewStorageError(err, "create vector query cache")
	}

	idx := &Index{engine: engine, dimensions: opts.Dimensions, backend: BackendFallback, cache: cache}

	if opts.PreferPrimary {
		if p := tryNewPrimaryBackend(ctx, engine, opts.Dimensions); p != nil && p.Available() {
			idx.primary = p
			idx.backend = BackendSQLiteVec
		} else {
			logging.Get(logging.CategoryVectorIndex).Warn("primary vector backend unavailable, degrading to fallback")
		}
	}
	return idx, nil
}

// Backend reports which backend is actually serving requests.
func (idx *Index) Backend() string { return idx.backend }

// Dimensions reports the fixed vector width this index accepts.
func (idx *Index) Dimensions() int { return idx.dimensions }

// Upsert replaces any prior vector for (entityID, model).
func (idx *Index) Upsert(ctx context.Context, entityID, model, content string, vector []float32) error {
	if len(vector) != idx.dimensions {
		return graphmodel.DimensionMismatch(len(vector), idx.dimensions)
	}
	if idx.primary != nil {
		if err := idx.primary.Upsert(ctx, entityID, model, vector); err != nil {
			logging.Get(logging.CategoryVectorIndex).Warn("primary upsert failed, writing fallback only: %v", err)
		}
	}
	return idx.fallbackUpsert(ctx, entityID, model, content, vector)
}

// Search returns the top-k matches for vector, ordered by descending
// score with ties broken by ascending entity ID for determinism.
func (idx *Index) Search(ctx context.Context, vector []float32, k int, filter func(entityID string) bool) ([]Match, error) {
	start := time.Now()
	defer func() {
		idx.searchCount.Add(1)
		idx.searchTotalNanos.Add(time.Since(start).Nanoseconds())
	}()

	if len(vector) != idx.dimensions {
		return nil, graphmodel.DimensionMismatch(len(vector), idx.dimensions)
	}
	if k <= 0 {
		k = 10
	}

	if cacheKey, ok := vectorCacheKey(vector, k); ok {
		if cached, ok := idx.cache.Get(cacheKey); ok {
			return cached.([]Match), nil
		}
	}

	var matches []Match
	var err error
	if idx.primary != nil {
		matches, err = idx.primary.Search(ctx, vector, k*4) // overfetch, filter below
		if err != nil {
			logging.Get(logging.CategoryVectorIndex).Warn("primary search failed, falling back: %v", err)
			matches = nil
		}
	}
	if matches == nil {
		matches, err = idx.fallbackSearch(ctx, vector, k*4)
		if err != nil {
			return nil, err
		}
	}

	if filter != nil {
		filtered := matches[:0]
		for _, m := range matches {
			if filter(m.EntityID) {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}

	if cacheKey, ok := vectorCacheKey(vector, k); ok {
		idx.cache.Add(cacheKey, matches)
	}
	return matches, nil
}

// DeleteByEntity removes all vectors for entityID across models.
func (idx *Index) DeleteByEntity(ctx context.Context, entityID string) error {
	if idx.primary != nil {
		_ = idx.primary.DeleteByEntity(ctx, entityID)
	}
	_, err := idx.engine.DB().ExecContext(ctx, `DELETE FROM embeddings WHERE entity_id = ?`, entityID)
	if err != nil {
		return graphmodel.NewStorageError(err, "delete vectors for entity %q", entityID)
	}
	return nil
}

// Clear removes every stored vector and purges the query cache, used by
// the reset_graph/clean_index tool operation.
func (idx *Index) Clear(ctx context.Context) error {
	if _, err := idx.engine.DB().ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return graphmodel.NewStorageError(err, "clear vector index")
	}
	idx.cache.Purge()
	return nil
}

// Stats reports index size, which backend is active, and search
// latency.
type Stats struct {
	VectorCount int64
	Dimensions  int
	Backend     string
	// AvgSearchLatencyMs is the mean wall-clock duration of every Search
	// call (including cache hits) over the process lifetime. Zero until
	// the first search runs.
	AvgSearchLatencyMs float64
}

func (idx *Index) Stats(ctx context.Context) (Stats, error) {
	var count int64
	if err := idx.engine.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count); err != nil {
		return Stats{}, graphmodel.NewStorageError(err, "count vectors")
	}
	st := Stats{VectorCount: count, Dimensions: idx.dimensions, Backend: idx.backend}
	if n := idx.searchCount.Load(); n > 0 {
		st.AvgSearchLatencyMs = float64(idx.searchTotalNanos.Load()) / float64(n) / float64(time.Millisecond)
	}
	return st, nil
}

// sortMatches orders by descending score, ties broken by ascending ID.
func sortMatches(m []Match) {
	sort.Slice(m, func(i, j int) bool {
		if m[i].Score != m[j].Score {
			return m[i].Score > m[j].Score
		}
		return m[i].EntityID < m[j].EntityID
	})
}
