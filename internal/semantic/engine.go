package semantic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/eventbus"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphstore"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/indexer"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/vectorindex"
)

// contextCalleeLimit/contextCallerLimit bound how many call-graph
// neighbors feed into an entity's semantic text (§5's "top_N" callees
// and callers).
const (
	contextCalleeLimit = 5
	contextCallerLimit = 5
	modelName          = "entity-summary-v1"
)

// Engine produces semantic summaries for entities, embeds them via a
// circuit-breaker-wrapped Provider, and serves semantic retrieval
// enriched with graph context.
type Engine struct {
	store    *graphstore.Store
	index    *vectorindex.Index
	provider *circuitBreaker
	bus      *eventbus.Bus
}

// New wires store/index/provider together and, if bus is non-nil,
// subscribes to the Indexer's "semantic:new_entities" topic so new
// entities are embedded without polling.
func New(store *graphstore.Store, index *vectorindex.Index, provider Provider, bus *eventbus.Bus) *Engine {
	fallback := NewMemoryProvider(index.Dimensions())
	e := &Engine{
		store:    store,
		index:    index,
		provider: newCircuitBreaker(provider, fallback),
		bus:      bus,
	}
	if bus != nil {
		e.subscribe()
	}
	return e
}

func (e *Engine) subscribe() {
	ch, _ := e.bus.Subscribe(indexer.TopicNewEntities, 256)
	go func() {
		for ev := range ch {
			payload, ok := ev.Payload.(indexer.NewEntitiesEvent)
			if !ok {
				continue
			}
			ctx := context.Background()
			for _, id := range payload.EntityIDs {
				if err := e.EmbedEntity(ctx, id); err != nil {
					logging.Get(logging.CategorySemantic).Warn("embed entity %s: %v", id, err)
				}
			}
		}
	}()
}

// semanticText composes the text described in spec.md §5:
// "{type} {name} in {file_path}\nsignature: ...\ncalls: ...\ncalled_by: ..."
func (e *Engine) semanticText(ctx context.Context, ent *graphmodel.Entity) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s in %s\n", ent.Type, ent.Name, ent.FilePath)
	if sig, ok := ent.Metadata["signature"].(string); ok && sig != "" {
		fmt.Fprintf(&b, "signature: %s\n", sig)
	}
	if doc, ok := ent.Metadata["documentation"].(string); ok && doc != "" {
		fmt.Fprintf(&b, "%s\n", doc)
	}

	rels, err := e.store.GetRelationshipsFor(ctx, ent.ID, graphmodel.RelCalls)
	if err != nil {
		return "", err
	}
	var callees, callers []string
	for _, r := range rels {
		if r.FromID == ent.ID && len(callees) < contextCalleeLimit {
			if callee, err := e.store.GetEntity(ctx, r.ToID); err == nil {
				callees = append(callees, callee.Name)
			}
		}
		if r.ToID == ent.ID && len(callers) < contextCallerLimit {
			if caller, err := e.store.GetEntity(ctx, r.FromID); err == nil {
				callers = append(callers, caller.Name)
			}
		}
	}
	fmt.Fprintf(&b, "calls: %s\n", strings.Join(callees, ", "))
	fmt.Fprintf(&b, "called_by: %s", strings.Join(callers, ", "))
	return b.String(), nil
}

// EmbedEntity composes an entity's semantic text and upserts its
// embedding into the Vector Index.
func (e *Engine) EmbedEntity(ctx context.Context, entityID string) error {
	ent, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}
	text, err := e.semanticText(ctx, ent)
	if err != nil {
		return err
	}
	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		return graphmodel.NewVectorError(err, "embed entity %q", entityID)
	}
	return e.index.Upsert(ctx, entityID, modelName, text, vec)
}

// SearchResult pairs a Vector Index match with its resolved entity.
type SearchResult struct {
	Entity graphmodel.Entity `json:"entity"`
	Score  float64           `json:"score"`
}

func (e *Engine) resolveMatches(ctx context.Context, matches []vectorindex.Match) []SearchResult {
	out := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		ent, err := e.store.GetEntity(ctx, m.EntityID)
		if err != nil {
			continue
		}
		out = append(out, SearchResult{Entity: *ent, Score: m.Score})
	}
	return out
}

// SemanticSearch embeds query_text and returns the top K hits enriched
// with their entity records.
func (e *Engine) SemanticSearch(ctx context.Context, queryText string, k int) ([]SearchResult, error) {
	vec, err := e.provider.Embed(ctx, queryText)
	if err != nil {
		return nil, graphmodel.NewVectorError(err, "embed query")
	}
	matches, err := e.index.Search(ctx, vec, k, nil)
	if err != nil {
		return nil, err
	}
	return e.resolveMatches(ctx, matches), nil
}

// FindSimilarCode embeds codeSnippet and returns hits scoring at or
// above threshold.
func (e *Engine) FindSimilarCode(ctx context.Context, codeSnippet string, threshold float64, k int) ([]SearchResult, error) {
	vec, err := e.provider.Embed(ctx, codeSnippet)
	if err != nil {
		return nil, graphmodel.NewVectorError(err, "embed snippet")
	}
	matches, err := e.index.Search(ctx, vec, k, nil)
	if err != nil {
		return nil, err
	}
	filtered := matches[:0]
	for _, m := range matches {
		if m.Score >= threshold {
			filtered = append(filtered, m)
		}
	}
	return e.resolveMatches(ctx, filtered), nil
}

// FindRelatedConcepts embeds entityID's own semantic text and returns
// its nearest neighbors, excluding itself.
func (e *Engine) FindRelatedConcepts(ctx context.Context, entityID string, k int) ([]SearchResult, error) {
	ent, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	text, err := e.semanticText(ctx, ent)
	if err != nil {
		return nil, err
	}
	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, graphmodel.NewVectorError(err, "embed entity")
	}
	matches, err := e.index.Search(ctx, vec, k+1, func(id string) bool { return id != entityID })
	if err != nil {
		return nil, err
	}
	if len(matches) > k {
		matches = matches[:k]
	}
	return e.resolveMatches(ctx, matches), nil
}

// CrossLanguageSearch runs SemanticSearch then restricts hits to the
// requested languages.
func (e *Engine) CrossLanguageSearch(ctx context.Context, queryText string, languages []string, k int) ([]SearchResult, error) {
	allowed := make(map[string]bool, len(languages))
	for _, l := range languages {
		allowed[l] = true
	}
	// overfetch since filtering happens after the vector search
	raw, err := e.SemanticSearch(ctx, queryText, k*4)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, k)
	for _, r := range raw {
		if len(allowed) == 0 || allowed[r.Entity.Language] {
			out = append(out, r)
			if len(out) >= k {
				break
			}
		}
	}
	return out, nil
}

// HybridRank combines a textual structural-match score with the
// semantic similarity score per spec.md §4.8: final = 0.6*structural +
// 0.4*semantic, boosted ×1.2 when both signals are non-zero.
func HybridRank(structural, semantic float64) float64 {
	final := 0.6*structural + 0.4*semantic
	if structural > 0 && semantic > 0 {
		final *= 1.2
	}
	return final
}

// ClonePair is two entities whose embeddings are similar enough to be
// considered duplicates.
type ClonePair struct {
	A, B       string
	Similarity float64
}

// CloneCluster groups transitively-connected clone pairs.
type CloneCluster struct {
	EntityIDs []string `json:"entity_ids"`
}

// DetectCodeClones precomputes pairwise top-matches for every entity in
// scope via the Vector Index, keeps pairs scoring at or above
// minSimilarity, then clusters them by transitive closure, bounded to
// avoid one highly-connected component swallowing the whole corpus.
func (e *Engine) DetectCodeClones(ctx context.Context, minSimilarity float64, scope []string) ([]CloneCluster, error) {
	const maxComponentSize = 200
	const topKPerEntity = 10

	parent := map[string]string{}
	find := func(x string) string {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, id := range scope {
		parent[id] = id
	}

	for _, id := range scope {
		ent, err := e.store.GetEntity(ctx, id)
		if err != nil {
			continue
		}
		text, err := e.semanticText(ctx, ent)
		if err != nil {
			continue
		}
		vec, err := e.provider.Embed(ctx, text)
		if err != nil {
			continue
		}
		matches, err := e.index.Search(ctx, vec, topKPerEntity+1, func(other string) bool { return other != id })
		if err != nil {
			continue
		}
		for _, m := range matches {
			if m.Score < minSimilarity {
				continue
			}
			if _, tracked := parent[m.EntityID]; !tracked {
				continue
			}
			union(id, m.EntityID)
		}
	}

	groups := map[string][]string{}
	for _, id := range scope {
		root := find(id)
		if len(groups[root]) >= maxComponentSize {
			continue
		}
		groups[root] = append(groups[root], id)
	}

	var clusters []CloneCluster
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		clusters = append(clusters, CloneCluster{EntityIDs: members})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].EntityIDs[0] < clusters[j].EntityIDs[0] })
	return clusters, nil
}

// RefactorSuggestion is one heuristic recommendation for a file.
type RefactorSuggestion struct {
	Entity     graphmodel.EntityRef `json:"entity"`
	Reason     string               `json:"reason"`
	Score      float64              `json:"score"`
}

// SuggestRefactoring composes a heuristic score over complexity,
// clone density within the file, and coupling, returning entities
// worth a closer look.
func (e *Engine) SuggestRefactoring(ctx context.Context, filePath string, focus string) ([]RefactorSuggestion, error) {
	entities, err := e.store.FindEntities(ctx, graphstore.EntityFilter{FilePath: filePath})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entities))
	for _, e2 := range entities {
		if focus == "" || e2.Name == focus {
			ids = append(ids, e2.ID)
		}
	}
	clusters, err := e.DetectCodeClones(ctx, 0.85, ids)
	if err != nil {
		return nil, err
	}
	cloneCount := map[string]int{}
	for _, c := range clusters {
		for _, id := range c.EntityIDs {
			cloneCount[id]++
		}
	}

	var out []RefactorSuggestion
	for _, ent := range entities {
		if focus != "" && ent.Name != focus {
			continue
		}
		rels, err := e.store.GetRelationshipsFor(ctx, ent.ID, "")
		if err != nil {
			return nil, err
		}
		coupling := float64(len(rels))
		clones := float64(cloneCount[ent.ID])
		score := ent.ComplexityScore + clones*2 + coupling*0.1
		if score <= 0 {
			continue
		}
		reason := "high complexity"
		if clones > 0 {
			reason = "duplicated logic detected"
		} else if coupling > 10 {
			reason = "high coupling"
		}
		out = append(out, RefactorSuggestion{Entity: graphmodel.EntityRef{ID: ent.ID, Name: ent.Name, Type: ent.Type}, Reason: reason, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Entity.ID < out[j].Entity.ID
	})
	return out, nil
}
