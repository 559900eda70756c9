// Package parser sits between file discovery and the Language
// Analyzers: it dispatches file content to the right analyzer and
// caches ParseResults by content hash so an unchanged file is never
// re-parsed. Grounded on the source's Scanner/parserPool shape,
// generalized from one tree-sitter parser pool to the full analyzer
// registry this module's many languages need.
package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/analyzer"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
)

// MaxCacheableSize is the size threshold (in bytes) above which a
// ParseResult is not cached, avoiding LRU memory blowup from a handful
// of huge generated files.
const MaxCacheableSize = 1 << 20 // 1 MiB

// Parser owns the analyzer registry and the content-hash result cache.
type Parser struct {
	registry  *analyzer.Registry
	cache     *lru.Cache
	cacheSize int
}

// Options configures the Parser's result cache.
type Options struct {
	CacheEntries int // default 500
}

func New(opts Options) (*Parser, error) {
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = 500
	}
	cache, err := lru.New(opts.CacheEntries)
	if err != nil {
		return nil, graphmodel.NewParserError(err, "create parser result cache")
	}
	return &Parser{registry: analyzer.NewRegistry(), cache: cache, cacheSize: opts.CacheEntries}, nil
}

// cacheKey follows spec.md's "path|hex(sha256(content))" scheme, so a
// file reverted to prior content hits the cache even if its mtime
// changed in between. The internal digest is always derived from
// content itself, never from externalHash alone, so two calls sharing
// the same path and externalHash but differing content never alias
// onto the same cache entry; externalHash (e.g. a caller-computed
// whole-file hash) is folded in only to let a caller invalidate a
// cache entry by supplying a fresh external hash for identical bytes.
func cacheKey(path string, content []byte, externalHash string) string {
	sum := sha256.Sum256(content)
	return path + "|" + externalHash + "|" + hex.EncodeToString(sum[:])
}

// Parse dispatches content to the registered analyzer for path's
// extension, serving a cached ParseResult when the exact (path,
// content, externalHash) tuple was parsed before. externalHash is
// optional (pass "" when the caller has no external digest to
// contribute); the internal content digest alone still guarantees no
// cross-content aliasing per spec.md:150. Files with no matching
// analyzer return (nil, nil): the caller skips them rather than
// treating it as an error.
func (p *Parser) Parse(ctx context.Context, path string, content []byte, externalHash string) (*graphmodel.ParseResult, error) {
	if len(content) <= MaxCacheableSize {
		key := cacheKey(path, content, externalHash)
		if cached, ok := p.cache.Get(key); ok {
			logging.Get(logging.CategoryParser).Debug("cache hit for %s", path)
			return cached.(*graphmodel.ParseResult), nil
		}
		res, err := p.registry.Parse(ctx, path, content)
		if err != nil || res == nil {
			return res, err
		}
		p.cache.Add(key, res)
		return res, nil
	}
	return p.registry.Parse(ctx, path, content)
}

// SupportsPath reports whether an analyzer is registered for path's
// extension, used by the Indexer to decide which files are worth
// reading off disk at all.
func (p *Parser) SupportsPath(path string) bool {
	_, ok := p.registry.For(path)
	return ok
}

// CacheLen reports the current number of cached ParseResults (test hook).
func (p *Parser) CacheLen() int { return p.cache.Len() }

// Purge drops every cached entry, used when a global re-index is
// requested and stale cache entries would otherwise mask content that
// changed underneath an unchanged path+hash (e.g. a forced rebuild
// after an analyzer upgrade).
func (p *Parser) Purge() { p.cache.Purge() }
