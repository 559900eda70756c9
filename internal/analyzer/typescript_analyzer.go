package analyzer

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// TypeScriptAnalyzer reuses walkJSFamily: the source's extractTSSymbols
// differs from extractJSSymbols only by the interface_declaration case,
// already present in the shared walker.
type TypeScriptAnalyzer struct{}

func NewTypeScriptAnalyzer() *TypeScriptAnalyzer { return &TypeScriptAnalyzer{} }

func (a *TypeScriptAnalyzer) Language() string { return "typescript" }
func (a *TypeScriptAnalyzer) Extensions() []string {
	return []string{".ts", ".tsx"}
}

func (a *TypeScriptAnalyzer) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	if hasSuffix(path, ".tsx") {
		parser.SetLanguage(tsx.GetLanguage())
	} else {
		parser.SetLanguage(typescript.GetLanguage())
	}

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, graphmodel.NewParserError(err, "parse typescript file %q", path)
	}
	defer tree.Close()

	b := newBuilder(path, a.Language(), content)
	budget := &walkBudget{}
	walkJSFamily(b, budget, tree.RootNode(), "")
	if budget.truncated {
		b.errors = append(b.errors, graphmodel.ParseError{Message: depthExceededMsg})
	}
	return b.result(), nil
}

func hasSuffix(path, suffix string) bool {
	return len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix
}
