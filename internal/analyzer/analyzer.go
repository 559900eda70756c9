// Package analyzer turns file contents into graphmodel entities and
// relationships. Each language gets one Analyzer; tree-sitter-backed
// analyzers share a recursive-walk style grounded on the source's
// TreeSitterParser, generalized here to emit graph facts directly
// instead of bridging through a Datalog kernel.
package analyzer

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// Analyzer converts one file's content into a ParseResult. Implementations
// must be safe for concurrent use by multiple goroutines.
type Analyzer interface {
	Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error)
	Language() string
	Extensions() []string
}

// MaxDepth and PerFileTimeout bound every analyzer's tree walk so a
// pathological or adversarial file can't hang a worker or blow the
// goroutine stack.
const (
	MaxDepth        = 50
	PerFileTimeout  = 5 * time.Second
	yieldEveryNodes = 16
	yieldPastDepth  = 25
)

// depthExceededMsg is folded into a ParseResult as a recoverable
// ParseError rather than failing the whole file, matching the Analyzer
// contract's "never hard-fails the caller" rule.
const depthExceededMsg = "max recursion depth exceeded, subtree skipped"

// Registry dispatches by file extension.
type Registry struct {
	byExt map[string]Analyzer
}

// NewRegistry builds the registry with every analyzer this module ships.
func NewRegistry() *Registry {
	r := &Registry{byExt: map[string]Analyzer{}}
	for _, a := range []Analyzer{
		NewGoAnalyzer(),
		NewPythonAnalyzer(),
		NewJavaScriptAnalyzer(),
		NewTypeScriptAnalyzer(),
		NewRustAnalyzer(),
		NewCAnalyzer(),
		NewCPPAnalyzer(),
		NewCSharpAnalyzer(),
		NewJavaAnalyzer(),
		NewKotlinAnalyzer(),
		NewVBAAnalyzer(),
		NewMarkdownAnalyzer(),
	} {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Analyzer) {
	for _, ext := range a.Extensions() {
		r.byExt[ext] = a
	}
}

// For returns the analyzer responsible for path's extension, if any.
func (r *Registry) For(path string) (Analyzer, bool) {
	a, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return a, ok
}

// Parse runs the appropriate analyzer under the shared per-file
// timeout. Files with no registered analyzer return a nil result and no
// error — the caller's indexer skips them rather than treating them as
// a failure.
func (r *Registry) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	a, ok := r.For(path)
	if !ok {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, PerFileTimeout)
	defer cancel()

	type out struct {
		res *graphmodel.ParseResult
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := a.Parse(ctx, path, content)
		done <- out{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return &graphmodel.ParseResult{
			FilePath:  path,
			Language:  a.Language(),
			Truncated: true,
			Errors:    []graphmodel.ParseError{{Message: "analysis timed out after " + PerFileTimeout.String()}},
		}, nil
	}
}

// walkBudget tracks recursion depth and node count so every
// tree-sitter-backed analyzer enforces the same circuit breaker without
// repeating the bookkeeping.
type walkBudget struct {
	depth     int
	truncated bool
	visited   int
}

func (b *walkBudget) enter() bool {
	if b.depth >= MaxDepth {
		b.truncated = true
		return false
	}
	b.depth++
	b.visited++
	if b.depth > yieldPastDepth && b.visited%yieldEveryNodes == 0 {
		yieldToScheduler()
	}
	return true
}

func (b *walkBudget) leave() { b.depth-- }
