package toolserver

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/coordinator"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphstore"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/indexer"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/queryengine"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/semantic"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/vectorindex"
)

// Services bundles every engine a tool handler calls into. One Services
// value is shared by every ToolDef built by NewEngineRegistry.
type Services struct {
	Coordinator *coordinator.Coordinator
	Indexer     *indexer.Indexer
	Store       *graphstore.Store
	Vector      *vectorindex.Index
	Query       *queryengine.Engine
	Semantic    *semantic.Engine

	// RootDir is used when a tool's "directory" argument is omitted.
	RootDir string
}

// submit wraps fn as a coordinator Task of the given kind and priority,
// blocking until the task completes or ctx is cancelled. Every tool
// call is scheduled through the Coordinator rather than run inline, so
// the public tool surface shares the same queue, priority, and
// resource-pressure discipline as any other work unit.
func submit(ctx context.Context, c *coordinator.Coordinator, kind coordinator.TaskKind, priority int, fn coordinator.Fn) (any, error) {
	resultC, err := c.Submit(&coordinator.Task{ID: uuid.NewString(), Kind: kind, Priority: priority, Run: fn})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-resultC:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, graphmodel.NewInputError("decode arguments: %v", err)
	}
	return v, nil
}

// --- index ---

type IndexInput struct {
	Directory string `json:"directory,omitempty"`
	// Incremental skips files whose tracked hash still matches their
	// on-disk content. Defaults to true (the usual incremental-index
	// behavior) when omitted; set false to force a full reindex.
	Incremental     *bool    `json:"incremental,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
}

type IndexOutput struct {
	FilesScanned      int      `json:"files_scanned"`
	FilesIndexed      int      `json:"files_indexed"`
	FilesSkipped      int      `json:"files_skipped"`
	Entities          int      `json:"entities"`
	Relationships     int      `json:"relationships"`
	Errors            []string `json:"errors,omitempty"`
	LargeRepoDetected bool     `json:"large_repo_detected,omitempty"`
}

func (s *Services) indexTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[IndexInput](args)
	if err != nil {
		return nil, err
	}
	dir := in.Directory
	if dir == "" {
		dir = s.RootDir
	}
	opts := indexer.IndexOptions{
		ForceFull:       in.Incremental != nil && !*in.Incremental,
		ExcludePatterns: in.ExcludePatterns,
	}

	v, err := submit(ctx, s.Coordinator, coordinator.KindIndexDirectory, 5, func(ctx context.Context) (any, error) {
		return s.Indexer.IndexDirectory(ctx, dir, opts)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*indexer.Result)
	out := IndexOutput{
		FilesScanned: res.FilesScanned, FilesIndexed: res.FilesIndexed, FilesSkipped: res.FilesSkipped,
		Entities: res.Entities, Relationships: res.Relationships, LargeRepoDetected: res.LargeRepoDetected,
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	if res.LargeRepoDetected {
		s.Coordinator.ResizePool(coordinator.AgentIndexer, s.Coordinator.PoolMax(coordinator.AgentIndexer))
	}
	return out, nil
}

// --- list_file_entities ---

type ListFileEntitiesInput struct {
	FilePath string                  `json:"file_path"`
	Types    []graphmodel.EntityType `json:"types,omitempty"`
}

func (s *Services) listFileEntitiesTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[ListFileEntitiesInput](args)
	if err != nil {
		return nil, err
	}
	if in.FilePath == "" {
		return nil, graphmodel.NewInputError("file_path is required")
	}
	return submit(ctx, s.Coordinator, coordinator.KindQuery, 3, func(ctx context.Context) (any, error) {
		return s.Query.ListFileEntities(ctx, queryengine.ListFileEntitiesRequest{FilePath: in.FilePath, Types: in.Types})
	})
}

// --- list_entity_relationships ---

type ListEntityRelationshipsInput struct {
	EntityName string                        `json:"entity_name"`
	FilePath   string                        `json:"file_path,omitempty"`
	Depth      int                           `json:"depth,omitempty"`
	Types      []graphmodel.RelationshipType `json:"types,omitempty"`
}

func (s *Services) listEntityRelationshipsTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[ListEntityRelationshipsInput](args)
	if err != nil {
		return nil, err
	}
	if in.EntityName == "" {
		return nil, graphmodel.NewInputError("entity_name is required")
	}
	return submit(ctx, s.Coordinator, coordinator.KindQuery, 3, func(ctx context.Context) (any, error) {
		return s.Query.ListEntityRelationships(ctx, queryengine.ListEntityRelationshipsRequest{
			EntityName: in.EntityName, FilePath: in.FilePath, Depth: in.Depth, Types: in.Types,
		})
	})
}

// --- query (subgraph traversal) ---

type QueryInput struct {
	EntityID string `json:"entity_id"`
	Depth    int    `json:"depth,omitempty"`
}

func (s *Services) queryTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[QueryInput](args)
	if err != nil {
		return nil, err
	}
	if in.EntityID == "" {
		return nil, graphmodel.NewInputError("entity_id is required")
	}
	return submit(ctx, s.Coordinator, coordinator.KindQuery, 3, func(ctx context.Context) (any, error) {
		return s.Query.GetSubgraph(ctx, queryengine.GetSubgraphRequest{EntityID: in.EntityID, Depth: in.Depth})
	})
}

// --- get_metrics ---

func (s *Services) getMetricsTool(ctx context.Context, args json.RawMessage) (any, error) {
	return submit(ctx, s.Coordinator, coordinator.KindQuery, 1, func(ctx context.Context) (any, error) {
		stats, err := s.Store.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"store":  stats,
			"agents": s.Coordinator.GetMetrics(),
		}, nil
	})
}

// --- semantic_search ---

type SemanticSearchInput struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

func (s *Services) semanticSearchTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[SemanticSearchInput](args)
	if err != nil {
		return nil, err
	}
	if in.Query == "" {
		return nil, graphmodel.NewInputError("query is required")
	}
	return submit(ctx, s.Coordinator, coordinator.KindSemanticSearch, 4, func(ctx context.Context) (any, error) {
		return s.Semantic.SemanticSearch(ctx, in.Query, in.K)
	})
}

// --- find_similar_code ---

type FindSimilarCodeInput struct {
	CodeSnippet string  `json:"code_snippet"`
	Threshold   float64 `json:"threshold,omitempty"`
	K           int     `json:"k,omitempty"`
}

func (s *Services) findSimilarCodeTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[FindSimilarCodeInput](args)
	if err != nil {
		return nil, err
	}
	if in.CodeSnippet == "" {
		return nil, graphmodel.NewInputError("code_snippet is required")
	}
	return submit(ctx, s.Coordinator, coordinator.KindSemanticSearch, 4, func(ctx context.Context) (any, error) {
		return s.Semantic.FindSimilarCode(ctx, in.CodeSnippet, in.Threshold, in.K)
	})
}

// --- analyze_code_impact ---

type AnalyzeCodeImpactInput struct {
	EntityID string `json:"entity_id"`
	Depth    int    `json:"depth,omitempty"`
}

func (s *Services) analyzeCodeImpactTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[AnalyzeCodeImpactInput](args)
	if err != nil {
		return nil, err
	}
	if in.EntityID == "" {
		return nil, graphmodel.NewInputError("entity_id is required")
	}
	return submit(ctx, s.Coordinator, coordinator.KindQuery, 3, func(ctx context.Context) (any, error) {
		return s.Query.AnalyzeCodeImpact(ctx, queryengine.AnalyzeCodeImpactRequest{EntityID: in.EntityID, Depth: in.Depth})
	})
}

// --- detect_code_clones ---

type DetectCodeClonesInput struct {
	MinSimilarity float64  `json:"min_similarity,omitempty"`
	Scope         []string `json:"scope,omitempty"`
}

func (s *Services) detectCodeClonesTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[DetectCodeClonesInput](args)
	if err != nil {
		return nil, err
	}
	return submit(ctx, s.Coordinator, coordinator.KindSemanticSearch, 4, func(ctx context.Context) (any, error) {
		return s.Semantic.DetectCodeClones(ctx, in.MinSimilarity, in.Scope)
	})
}

// --- suggest_refactoring ---

type SuggestRefactoringInput struct {
	FilePath string `json:"file_path"`
	Focus    string `json:"focus,omitempty"`
}

func (s *Services) suggestRefactoringTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[SuggestRefactoringInput](args)
	if err != nil {
		return nil, err
	}
	if in.FilePath == "" {
		return nil, graphmodel.NewInputError("file_path is required")
	}
	return submit(ctx, s.Coordinator, coordinator.KindSemanticSearch, 4, func(ctx context.Context) (any, error) {
		return s.Semantic.SuggestRefactoring(ctx, in.FilePath, in.Focus)
	})
}

// --- cross_language_search ---

type CrossLanguageSearchInput struct {
	Query     string   `json:"query"`
	Languages []string `json:"languages,omitempty"`
	K         int      `json:"k,omitempty"`
}

func (s *Services) crossLanguageSearchTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[CrossLanguageSearchInput](args)
	if err != nil {
		return nil, err
	}
	if in.Query == "" {
		return nil, graphmodel.NewInputError("query is required")
	}
	return submit(ctx, s.Coordinator, coordinator.KindSemanticSearch, 4, func(ctx context.Context) (any, error) {
		return s.Semantic.CrossLanguageSearch(ctx, in.Query, in.Languages, in.K)
	})
}

// --- analyze_hotspots ---

type AnalyzeHotspotsInput struct {
	Metric string `json:"metric,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Services) analyzeHotspotsTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[AnalyzeHotspotsInput](args)
	if err != nil {
		return nil, err
	}
	return submit(ctx, s.Coordinator, coordinator.KindQuery, 3, func(ctx context.Context) (any, error) {
		return s.Query.AnalyzeHotspots(ctx, queryengine.AnalyzeHotspotsRequest{
			Metric: queryengine.HotspotMetric(in.Metric), Limit: in.Limit,
		})
	})
}

// --- find_related_concepts ---

type FindRelatedConceptsInput struct {
	EntityID string `json:"entity_id"`
	K        int    `json:"k,omitempty"`
}

func (s *Services) findRelatedConceptsTool(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[FindRelatedConceptsInput](args)
	if err != nil {
		return nil, err
	}
	if in.EntityID == "" {
		return nil, graphmodel.NewInputError("entity_id is required")
	}
	return submit(ctx, s.Coordinator, coordinator.KindSemanticSearch, 4, func(ctx context.Context) (any, error) {
		return s.Semantic.FindRelatedConcepts(ctx, in.EntityID, in.K)
	})
}

// --- get_graph_health ---

func (s *Services) getGraphHealthTool(ctx context.Context, args json.RawMessage) (any, error) {
	return submit(ctx, s.Coordinator, coordinator.KindQuery, 1, func(ctx context.Context) (any, error) {
		return s.Store.Stats(ctx)
	})
}

// --- reset_graph / clean_index ---

func (s *Services) resetGraphTool(ctx context.Context, args json.RawMessage) (any, error) {
	_, err := submit(ctx, s.Coordinator, coordinator.KindIndexDirectory, 2, func(ctx context.Context) (any, error) {
		if err := s.Store.ResetAll(ctx); err != nil {
			return nil, err
		}
		if err := s.Vector.Clear(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"success": true}, nil
}
