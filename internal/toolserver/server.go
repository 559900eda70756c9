package toolserver

// NewEngineRegistry builds the full tool-call surface described in the
// external interface table, binding each entry to svc. Tool names and
// argument/response shapes are fixed; callers discover them via
// Registry.Names and Registry.Get rather than any JIT selection.
func NewEngineRegistry(svc *Services) *Registry {
	r := NewRegistry()

	r.MustRegister(&ToolDef{
		Name:        "index",
		Description: "Walk a directory, parse recognized source files, and batch entities/relationships into the graph store. Incremental: files whose content hash is unchanged are skipped.",
		Execute:     svc.indexTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "list_file_entities",
		Description: "List every entity recorded for a file, optionally restricted to a set of entity types.",
		Execute:     svc.listFileEntitiesTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "list_entity_relationships",
		Description: "Resolve entities by name and walk their relationships outward up to a depth.",
		Execute:     svc.listEntityRelationshipsTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "query",
		Description: "Return the bounded subgraph reachable from an entity within a depth.",
		Execute:     svc.queryTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "get_metrics",
		Description: "Report graph store counts and per-agent coordinator metrics.",
		Execute:     svc.getMetricsTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "semantic_search",
		Description: "Embed a natural-language query and return the nearest entities by semantic similarity.",
		Execute:     svc.semanticSearchTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "find_similar_code",
		Description: "Embed a code snippet and return entities whose similarity meets a threshold.",
		Execute:     svc.findSimilarCodeTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "analyze_code_impact",
		Description: "Walk calls/references/imports edges backwards from an entity to find what depends on it.",
		Execute:     svc.analyzeCodeImpactTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "detect_code_clones",
		Description: "Cluster entities whose embeddings are similar enough to be considered duplicates.",
		Execute:     svc.detectCodeClonesTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "suggest_refactoring",
		Description: "Score a file's entities by complexity, clone density, and coupling to surface refactor candidates.",
		Execute:     svc.suggestRefactoringTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "cross_language_search",
		Description: "Run a semantic search restricted to a set of source languages.",
		Execute:     svc.crossLanguageSearchTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "analyze_hotspots",
		Description: "Rank entities by complexity, change recency, or coupling.",
		Execute:     svc.analyzeHotspotsTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "find_related_concepts",
		Description: "Return an entity's nearest neighbors by semantic similarity, excluding itself.",
		Execute:     svc.findRelatedConceptsTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "get_graph_health",
		Description: "Report entity, relationship, file, and embedding counts.",
		Execute:     svc.getGraphHealthTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "reset_graph",
		Description: "Delete every entity, relationship, file tracking row, and stored vector, leaving the schema intact.",
		Execute:     svc.resetGraphTool,
	})
	r.MustRegister(&ToolDef{
		Name:        "clean_index",
		Description: "Alias of reset_graph retained for client compatibility.",
		Execute:     svc.resetGraphTool,
	})

	return r
}
