package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/config"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/coordinator"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/eventbus"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphstore"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/indexer"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/metrics"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/parser"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/queryengine"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/semantic"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/storage"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/toolserver"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/vectorindex"
)

// engine bundles every long-lived component started from cfg. Every
// subcommand calls newEngine once and defers engine.Close().
type engine struct {
	storage   *storage.Engine
	store     *graphstore.Store
	vector    *vectorindex.Index
	query     *queryengine.Engine
	semantic  *semantic.Engine
	indexer   *indexer.Indexer
	coord     *coordinator.Coordinator
	collector *metrics.Collector
	services  *toolserver.Services
	bus       *eventbus.Bus
}

func newEngine(ctx context.Context, cfg *config.Config, rootDir string) (*engine, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dbEngine, err := storage.Open(cfg.Database.Path, storage.Options{
		BusyTimeoutMs:  cfg.Database.BusyTimeoutMs,
		CacheSizePages: cfg.Database.CacheSizePages,
		MmapSizeBytes:  cfg.Database.MmapSizeBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage engine: %w", err)
	}

	store := graphstore.New(dbEngine)

	vec, err := vectorindex.Open(ctx, dbEngine, vectorindex.Options{
		Dimensions:    cfg.Vector.Dimensions,
		CacheEntries:  cfg.Vector.CacheEntries,
		PreferPrimary: cfg.Vector.Backend != "fallback",
	})
	if err != nil {
		dbEngine.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	queryEng, err := queryengine.New(store, queryengine.Options{
		CacheEntries:    cfg.Query.CacheEntries,
		CacheTTL:        cfg.Query.CacheTTL,
		SubgraphNodeCap: cfg.Query.SubgraphNodeCap,
	})
	if err != nil {
		dbEngine.Close()
		return nil, fmt.Errorf("open query engine: %w", err)
	}

	bus := eventbus.New()
	provider, err := embeddingProvider(cfg)
	if err != nil {
		dbEngine.Close()
		return nil, err
	}
	semEng := semantic.New(store, vec, provider, bus)

	p, err := parser.New(parser.Options{CacheEntries: cfg.Parser.CacheEntries})
	if err != nil {
		dbEngine.Close()
		return nil, fmt.Errorf("open parser: %w", err)
	}

	ignoreDirs := map[string]bool{}
	for _, pattern := range cfg.Indexer.ExcludePatterns {
		ignoreDirs[filepath.Base(filepath.Clean(pattern))] = true
	}
	defaultIndexerOpts := indexer.DefaultOptions()
	ix := indexer.New(p, store, bus, indexer.Options{
		IgnoreDirs: ignoreDirs,
		BatchOptions: graphstore.BatchOptions{
			InitialSize: cfg.Indexer.BatchSize,
			TargetMs:    cfg.Indexer.BatchTargetMs,
			MaxSize:     cfg.Indexer.BatchMaxSize,
			MaxRetries:  graphstore.DefaultBatchOptions().MaxRetries,
		},
		LargeRepoThreshold:    cfg.Indexer.LargeRepoThreshold,
		AggressiveExcludeDirs: defaultIndexerOpts.AggressiveExcludeDirs,
	})

	coord := coordinator.New(cfg.Coordinator)
	collector := metrics.NewCollector(store, vec, coord, cfg.Coordinator.ResourceSampleInterval)
	collector.Start()

	svc := &toolserver.Services{
		Coordinator: coord,
		Indexer:     ix,
		Store:       store,
		Vector:      vec,
		Query:       queryEng,
		Semantic:    semEng,
		RootDir:     rootDir,
	}

	return &engine{
		storage: dbEngine, store: store, vector: vec, query: queryEng,
		semantic: semEng, indexer: ix, coord: coord, collector: collector,
		services: svc, bus: bus,
	}, nil
}

func newRegistry(e *engine) *toolserver.Registry {
	return toolserver.NewEngineRegistry(e.services)
}

func (e *engine) Close() error {
	e.collector.Stop()
	e.coord.Close()
	return e.storage.Close()
}

// embeddingProvider builds the Semantic Engine's primary embedding
// provider from the configured backend; the Engine always wraps it in
// a circuit breaker that falls back to an in-process deterministic
// provider, so a bad network provider degrades rather than fails hard.
func embeddingProvider(cfg *config.Config) (semantic.Provider, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return semantic.NewOllamaProvider(cfg.Embedding.OllamaEndpoint, cfg.Embedding.OllamaModel, cfg.Embedding.Dimensions), nil
	case "openai":
		return semantic.NewOpenAIProvider(cfg.Embedding.OpenAIAPIKey, cfg.Embedding.OpenAIModel)
	default:
		return semantic.NewMemoryProvider(cfg.Embedding.Dimensions), nil
	}
}
