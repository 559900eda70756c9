// Package indexer orchestrates file discovery, dispatches content to
// the Parser, and batches the resulting entities/relationships into
// the Graph Store. It publishes a "semantic:new_entities" event after
// each file's batch commits so the Semantic Engine can pick up new
// entities for embedding without polling. Grounded on the source's
// Scanner.ScanWorkspace directory walk, generalized from fact
// collection into graph-store batch writes.
package indexer

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/eventbus"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphstore"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/parser"
)

// TopicNewEntities is the eventbus topic the Semantic Engine subscribes
// to for incremental embedding work.
const TopicNewEntities = "semantic:new_entities"

// NewEntitiesEvent is the payload published on TopicNewEntities.
type NewEntitiesEvent struct {
	FilePath string
	EntityIDs []string
}

// Indexer ties the Parser and Graph Store together for one repository.
type Indexer struct {
	parser *parser.Parser
	store  *graphstore.Store
	bus    *eventbus.Bus
	opts   Options
}

// Options configures indexing behavior.
type Options struct {
	IgnoreDirs   map[string]bool // e.g. ".git", "node_modules", "vendor"
	BatchOptions graphstore.BatchOptions

	// LargeRepoThreshold is the file count above which IndexDirectory
	// treats root as a large repository: it layers AggressiveExcludeDirs
	// on top of IgnoreDirs for that call and scales BatchOptions up
	// toward its MaxSize. Zero disables size detection.
	LargeRepoThreshold int
	// AggressiveExcludeDirs are additional directory names skipped only
	// once LargeRepoThreshold is exceeded (tests, docs, vendored
	// bundles — the directories most likely to dominate entity count
	// without being load-bearing for code-graph queries).
	AggressiveExcludeDirs map[string]bool
}

// DefaultOptions mirrors common VCS/build-artifact exclusions.
func DefaultOptions() Options {
	return Options{
		IgnoreDirs: map[string]bool{
			".git": true, "node_modules": true, "vendor": true,
			"dist": true, "build": true, "target": true, ".idea": true,
		},
		BatchOptions:       graphstore.DefaultBatchOptions(),
		LargeRepoThreshold: 20000,
		AggressiveExcludeDirs: map[string]bool{
			"test": true, "tests": true, "testdata": true,
			"docs": true, "doc": true, "examples": true,
		},
	}
}

func New(p *parser.Parser, store *graphstore.Store, bus *eventbus.Bus, opts Options) *Indexer {
	if opts.IgnoreDirs == nil {
		opts = DefaultOptions()
	}
	return &Indexer{parser: p, store: store, bus: bus, opts: opts}
}

// Result summarizes one IndexDirectory run.
type Result struct {
	FilesScanned      int
	FilesIndexed      int
	FilesSkipped      int
	Entities          int
	Relationships     int
	Errors            []error
	LargeRepoDetected bool
}

// IndexOptions configures a single IndexDirectory call.
type IndexOptions struct {
	// ForceFull bypasses the on-disk hash check so every matched file is
	// reparsed and rewritten even when its tracked FileInfo hash still
	// matches. The zero value (false) keeps the default incremental,
	// skip-if-unchanged behavior, matching spec's incremental=true
	// default for the index tool.
	ForceFull bool
	// ExcludePatterns adds directory names to skip for this call only,
	// layered on top of the Indexer's static IgnoreDirs. Matched the
	// same way IgnoreDirs is: by base directory name, not glob.
	ExcludePatterns []string
}

// minifiedSuffixes are file-level (not directory) excludes applied once
// a directory is flagged as a large repository; minified bundles carry
// no useful entities but are expensive to parse.
var minifiedSuffixes = []string{".min.js", ".min.css", ".bundle.js"}

// IndexDirectory walks root, parsing and batching every file the Parser
// recognizes. Files whose on-disk hash matches the tracked FileInfo are
// skipped unless opts.ForceFull is set. Before the indexing walk, a
// lightweight counting pass detects codebase size; above
// LargeRepoThreshold it layers AggressiveExcludeDirs on top of the
// caller's excludes and scales BatchOptions toward MaxSize so the real
// walk commits fewer, larger transactions.
func (ix *Indexer) IndexDirectory(ctx context.Context, root string, opts IndexOptions) (*Result, error) {
	res := &Result{}
	timer := logging.StartTimer(logging.CategoryIndexer, "IndexDirectory")
	defer timer.Stop()

	exclude := make(map[string]bool, len(ix.opts.IgnoreDirs)+len(opts.ExcludePatterns))
	for k, v := range ix.opts.IgnoreDirs {
		exclude[k] = v
	}
	for _, pattern := range opts.ExcludePatterns {
		exclude[filepath.Base(filepath.Clean(pattern))] = true
	}

	batchOpts := ix.opts.BatchOptions
	if ix.opts.LargeRepoThreshold > 0 {
		count, err := ix.countEligibleFiles(root, exclude)
		if err == nil && count > ix.opts.LargeRepoThreshold {
			res.LargeRepoDetected = true
			for dir := range ix.opts.AggressiveExcludeDirs {
				exclude[dir] = true
			}
			if batchOpts.InitialSize < batchOpts.MaxSize {
				batchOpts.InitialSize = batchOpts.MaxSize
			}
			logging.Get(logging.CategoryIndexer).Info(
				"large repository detected (%d files > %d threshold): applying aggressive excludes and batch size %d",
				count, ix.opts.LargeRepoThreshold, batchOpts.InitialSize)
		}
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if exclude[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if isMinifiedBundle(path) || !ix.parser.SupportsPath(path) {
			return nil
		}
		res.FilesScanned++

		if err := ctx.Err(); err != nil {
			return err
		}

		indexed, err := ix.indexFile(ctx, path, opts.ForceFull, batchOpts)
		if err != nil {
			res.Errors = append(res.Errors, err)
			logging.Get(logging.CategoryIndexer).Error("index %s: %v", path, err)
			return nil // one file's failure doesn't abort the walk
		}
		if indexed == nil {
			res.FilesSkipped++
			return nil
		}
		res.FilesIndexed++
		res.Entities += len(indexed.Entities)
		res.Relationships += len(indexed.Relationships)
		return nil
	})
	if err != nil {
		return res, graphmodel.NewStorageError(err, "walk directory %q", root)
	}
	return res, nil
}

// countEligibleFiles does a stat-only walk to size the repository before
// committing to a batch size and exclude set for the real pass.
func (ix *Indexer) countEligibleFiles(root string, exclude map[string]bool) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if exclude[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMinifiedBundle(path) && ix.parser.SupportsPath(path) {
			count++
		}
		return nil
	})
	return count, err
}

func isMinifiedBundle(path string) bool {
	for _, suffix := range minifiedSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// IndexFile parses and batches a single file, returning nil (no error)
// when the file's content hash matches what's already tracked.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (*graphmodel.ParseResult, error) {
	return ix.indexFile(ctx, path, false, ix.opts.BatchOptions)
}

// indexFile is IndexFile's implementation, parameterized by forceFull
// (bypasses the hash-match skip) and the batch options the caller
// computed for this run (IndexDirectory may scale these above the
// Indexer's static default once it detects a large repository).
func (ix *Indexer) indexFile(ctx context.Context, path string, forceFull bool, batchOpts graphstore.BatchOptions) (*graphmodel.ParseResult, error) {
	content, err := readFile(path)
	if err != nil {
		return nil, graphmodel.NewStorageError(err, "read file %q", path)
	}
	contentHash := graphmodel.ContentHash(content)

	if !forceFull {
		if existing, err := ix.store.GetFileInfo(ctx, path); err == nil && existing.Hash == contentHash {
			return nil, nil
		}
	}

	result, err := ix.parser.Parse(ctx, path, content, contentHash)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	if err := ix.store.DeleteEntitiesByFile(ctx, path); err != nil {
		return nil, err
	}

	if _, err := ix.store.UpsertEntitiesBatch(ctx, result.Entities, batchOpts); err != nil {
		return nil, err
	}
	if _, err := ix.store.UpsertRelationshipsBatch(ctx, result.Relationships, batchOpts); err != nil {
		return nil, err
	}

	if err := ix.store.UpdateFileInfo(ctx, graphmodel.FileInfo{
		Path: path, Hash: contentHash, LastIndexed: time.Now(), EntityCount: len(result.Entities),
	}); err != nil {
		return nil, err
	}

	if ix.bus != nil {
		ids := make([]string, len(result.Entities))
		for i, e := range result.Entities {
			ids[i] = e.ID
		}
		ix.bus.Publish(TopicNewEntities, NewEntitiesEvent{FilePath: path, EntityIDs: ids})
	}

	return result, nil
}

// RemoveFile purges a deleted file's entities/relationships from the
// graph and clears its tracking row.
func (ix *Indexer) RemoveFile(ctx context.Context, path string) error {
	if err := ix.store.DeleteEntitiesByFile(ctx, path); err != nil {
		return err
	}
	return ix.store.DeleteFileInfo(ctx, path)
}
