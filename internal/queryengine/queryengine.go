// Package queryengine serves structural queries against the Graph
// Store with bounded latency, caching results for a short TTL so
// repeated calls from the same agent session avoid re-hitting SQLite.
// Grounded on the source's LocalStore.QueryLinks/TraversePath pair,
// generalized into the five read-only operations spec.md names.
package queryengine

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphstore"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
)

// DefaultCacheEntries and DefaultCacheTTL match spec.md's "5 min, 1000
// entries" result cache.
const (
	DefaultCacheEntries = 1000
	DefaultCacheTTL     = 5 * time.Minute
)

// Engine answers structural queries, caching by canonical request JSON.
type Engine struct {
	store *graphstore.Store
	cache *lru.Cache
	ttl   time.Duration
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// Options configures the result cache.
type Options struct {
	CacheEntries int
	CacheTTL     time.Duration
}

func New(store *graphstore.Store, opts Options) (*Engine, error) {
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = DefaultCacheEntries
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	cache, err := lru.New(opts.CacheEntries)
	if err != nil {
		return nil, graphmodel.NewStorageError(err, "create query result cache")
	}
	return &Engine{store: store, cache: cache, ttl: opts.CacheTTL}, nil
}

// canonicalKey produces a stable cache key for req by marshaling it
// through a map so Go's json package sorts keys alphabetically.
func canonicalKey(operation string, req any) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	var generic map[string]any
	if err := json.Unmarshal(b, &generic); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return operation + "|" + string(canonical), nil
}

func (e *Engine) lookup(key string) (any, bool) {
	raw, ok := e.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := raw.(cacheEntry)
	if time.Now().After(entry.expiresAt) {
		e.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (e *Engine) put(key string, value any) {
	e.cache.Add(key, cacheEntry{value: value, expiresAt: time.Now().Add(e.ttl)})
}

// ListFileEntitiesRequest is the payload for ListFileEntities.
type ListFileEntitiesRequest struct {
	FilePath string                  `json:"file_path"`
	Types    []graphmodel.EntityType `json:"types,omitempty"`
}

// ListFileEntities returns every entity recorded for a file, optionally
// restricted to a set of entity types.
func (e *Engine) ListFileEntities(ctx context.Context, req ListFileEntitiesRequest) ([]graphmodel.Entity, error) {
	key, err := canonicalKey("list_file_entities", req)
	if err != nil {
		return nil, graphmodel.NewInputError("encode request: %v", err)
	}
	if cached, ok := e.lookup(key); ok {
		return cached.([]graphmodel.Entity), nil
	}
	timer := logging.StartTimer(logging.CategoryQuery, "list_file_entities")
	defer timer.Stop()

	typeSet := make(map[graphmodel.EntityType]bool, len(req.Types))
	for _, t := range req.Types {
		typeSet[t] = true
	}

	var out []graphmodel.Entity
	if len(req.Types) == 0 {
		out, err = e.store.FindEntities(ctx, graphstore.EntityFilter{FilePath: req.FilePath})
		if err != nil {
			return nil, err
		}
	} else {
		for t := range typeSet {
			matches, err := e.store.FindEntities(ctx, graphstore.EntityFilter{FilePath: req.FilePath, Type: t})
			if err != nil {
				return nil, err
			}
			out = append(out, matches...)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}

	e.put(key, out)
	return out, nil
}

// ListEntityRelationshipsRequest is the payload for ListEntityRelationships.
type ListEntityRelationshipsRequest struct {
	EntityName string                        `json:"entity_name"`
	FilePath   string                        `json:"file_path,omitempty"`
	Depth      int                           `json:"depth"`
	Types      []graphmodel.RelationshipType `json:"types,omitempty"`
}

// RelationshipHop pairs a traversed relationship with both endpoints.
type RelationshipHop struct {
	Relationship graphmodel.Relationship `json:"relationship"`
	From         graphmodel.EntityRef    `json:"from"`
	To           graphmodel.EntityRef    `json:"to"`
}

// ListEntityRelationships resolves entities by name (and optionally
// file), then walks outgoing/incoming edges up to depth hops.
func (e *Engine) ListEntityRelationships(ctx context.Context, req ListEntityRelationshipsRequest) ([]RelationshipHop, error) {
	key, err := canonicalKey("list_entity_relationships", req)
	if err != nil {
		return nil, graphmodel.NewInputError("encode request: %v", err)
	}
	if cached, ok := e.lookup(key); ok {
		return cached.([]RelationshipHop), nil
	}
	timer := logging.StartTimer(logging.CategoryQuery, "list_entity_relationships")
	defer timer.Stop()

	roots, err := e.store.FindEntities(ctx, graphstore.EntityFilter{FilePath: req.FilePath, Name: req.EntityName})
	if err != nil {
		return nil, err
	}
	if req.Depth <= 0 {
		req.Depth = 1
	}
	typeSet := make(map[graphmodel.RelationshipType]bool, len(req.Types))
	for _, t := range req.Types {
		typeSet[t] = true
	}

	var out []RelationshipHop
	visited := map[string]bool{}
	frontier := make([]string, 0, len(roots))
	for _, r := range roots {
		frontier = append(frontier, r.ID)
		visited[r.ID] = true
	}

	for d := 0; d < req.Depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			rels, err := e.store.GetRelationshipsFor(ctx, id, "")
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				if len(typeSet) > 0 && !typeSet[rel.Type] {
					continue
				}
				from, err := e.store.GetEntity(ctx, rel.FromID)
				if err != nil {
					continue
				}
				to, err := e.store.GetEntity(ctx, rel.ToID)
				if err != nil {
					continue
				}
				out = append(out, RelationshipHop{
					Relationship: rel,
					From:         graphmodel.EntityRef{ID: from.ID, Name: from.Name, Type: from.Type},
					To:           graphmodel.EntityRef{ID: to.ID, Name: to.Name, Type: to.Type},
				})
				other := rel.ToID
				if other == id {
					other = rel.FromID
				}
				if !visited[other] {
					visited[other] = true
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Relationship.ID < out[j].Relationship.ID })
	e.put(key, out)
	return out, nil
}

// GetSubgraphRequest is the payload for GetSubgraph.
type GetSubgraphRequest struct {
	EntityID string `json:"entity_id"`
	Depth    int    `json:"depth"`
}

// GetSubgraph performs a bounded BFS from EntityID, delegating the walk
// itself to the Graph Store (which enforces the 10000-node cap).
func (e *Engine) GetSubgraph(ctx context.Context, req GetSubgraphRequest) ([]graphstore.SubgraphNode, error) {
	key, err := canonicalKey("get_subgraph", req)
	if err != nil {
		return nil, graphmodel.NewInputError("encode request: %v", err)
	}
	if cached, ok := e.lookup(key); ok {
		return cached.([]graphstore.SubgraphNode), nil
	}
	timer := logging.StartTimer(logging.CategoryQuery, "get_subgraph")
	defer timer.Stop()

	out, err := e.store.GetSubgraph(ctx, req.EntityID, req.Depth, 0)
	if err != nil {
		return nil, err
	}
	e.put(key, out)
	return out, nil
}

// HotspotMetric selects what analyze_hotspots scores by.
type HotspotMetric string

const (
	MetricComplexity HotspotMetric = "complexity"
	MetricChanges    HotspotMetric = "changes"
	MetricCoupling   HotspotMetric = "coupling"
)

// AnalyzeHotspotsRequest is the payload for AnalyzeHotspots.
type AnalyzeHotspotsRequest struct {
	Metric HotspotMetric `json:"metric"`
	Limit  int           `json:"limit"`
}

// Hotspot is one ranked entity.
type Hotspot struct {
	Entity graphmodel.EntityRef `json:"entity"`
	Score  float64              `json:"score"`
}

// AnalyzeHotspots ranks entities by the requested metric, returning the
// top Limit with a deterministic ID tie-break.
func (e *Engine) AnalyzeHotspots(ctx context.Context, req AnalyzeHotspotsRequest) ([]Hotspot, error) {
	key, err := canonicalKey("analyze_hotspots", req)
	if err != nil {
		return nil, graphmodel.NewInputError("encode request: %v", err)
	}
	if cached, ok := e.lookup(key); ok {
		return cached.([]Hotspot), nil
	}
	timer := logging.StartTimer(logging.CategoryQuery, "analyze_hotspots")
	defer timer.Stop()

	if req.Limit <= 0 {
		req.Limit = 20
	}

	entities, err := e.store.FindEntities(ctx, graphstore.EntityFilter{})
	if err != nil {
		return nil, err
	}

	var scored []Hotspot
	switch req.Metric {
	case MetricChanges:
		for _, ent := range entities {
			fi, err := e.store.GetFileInfo(ctx, ent.FilePath)
			score := 0.0
			if err == nil {
				score = float64(fi.LastIndexed.Unix())
			}
			scored = append(scored, Hotspot{Entity: toRef(ent), Score: score})
		}
	case MetricCoupling:
		for _, ent := range entities {
			rels, err := e.store.GetRelationshipsFor(ctx, ent.ID, "")
			if err != nil {
				return nil, err
			}
			scored = append(scored, Hotspot{Entity: toRef(ent), Score: float64(len(rels))})
		}
	default: // MetricComplexity
		for _, ent := range entities {
			scored = append(scored, Hotspot{Entity: toRef(ent), Score: ent.ComplexityScore})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entity.ID < scored[j].Entity.ID
	})
	if len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}

	e.put(key, scored)
	return scored, nil
}

// AnalyzeCodeImpactRequest is the payload for AnalyzeCodeImpact.
type AnalyzeCodeImpactRequest struct {
	EntityID string `json:"entity_id"`
	Depth    int    `json:"depth"`
}

// AnalyzeCodeImpact walks calls/references/imports edges backwards
// from EntityID to find what would be affected by changing it.
func (e *Engine) AnalyzeCodeImpact(ctx context.Context, req AnalyzeCodeImpactRequest) ([]graphmodel.EntityRef, error) {
	key, err := canonicalKey("analyze_code_impact", req)
	if err != nil {
		return nil, graphmodel.NewInputError("encode request: %v", err)
	}
	if cached, ok := e.lookup(key); ok {
		return cached.([]graphmodel.EntityRef), nil
	}
	timer := logging.StartTimer(logging.CategoryQuery, "analyze_code_impact")
	defer timer.Stop()

	if req.Depth <= 0 {
		req.Depth = 3
	}
	impactTypes := map[graphmodel.RelationshipType]bool{
		graphmodel.RelCalls:      true,
		graphmodel.RelReferences: true,
		graphmodel.RelImports:    true,
	}

	visited := map[string]bool{req.EntityID: true}
	frontier := []string{req.EntityID}
	var impacted []graphmodel.EntityRef

	for d := 0; d < req.Depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			rels, err := e.store.GetRelationshipsFor(ctx, id, "")
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				if !impactTypes[rel.Type] || rel.ToID != id {
					continue // only the reverse direction: others pointing at id
				}
				if visited[rel.FromID] {
					continue
				}
				visited[rel.FromID] = true
				ent, err := e.store.GetEntity(ctx, rel.FromID)
				if err != nil {
					continue
				}
				impacted = append(impacted, toRef(*ent))
				next = append(next, rel.FromID)
			}
		}
		frontier = next
	}

	sort.Slice(impacted, func(i, j int) bool { return impacted[i].ID < impacted[j].ID })
	e.put(key, impacted)
	return impacted, nil
}

func toRef(e graphmodel.Entity) graphmodel.EntityRef {
	return graphmodel.EntityRef{ID: e.ID, Name: e.Name, Type: e.Type}
}
