package analyzer

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// JavaScriptAnalyzer is grounded on the source's extractJSSymbols.
type JavaScriptAnalyzer struct{}

func NewJavaScriptAnalyzer() *JavaScriptAnalyzer { return &JavaScriptAnalyzer{} }

func (a *JavaScriptAnalyzer) Language() string     { return "javascript" }
func (a *JavaScriptAnalyzer) Extensions() []string { return []string{".js", ".jsx", ".mjs", ".cjs"} }

func (a *JavaScriptAnalyzer) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, graphmodel.NewParserError(err, "parse javascript file %q", path)
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

// walkJSFamily is shared by JavaScript and TypeScript: both grammars
// expose the same node types for the constructs we extract, per the
// source's nearly-identical extractJSSymbols/extractTSSymbols pair.
// enclosingID is the function/method whose body n sits in, so a call
// expression attributes to the right caller.
func walkJSFamily(b *builder, budget *walkBudget, n *sitter.Node, enclosingID string) {
	if !budget.enter() {
		return
	}
	defer budget.leave()

	hasExport := func(n *sitter.Node) bool {
		parent := n.Parent()
		return parent != nil && parent.Type() == "export_statement"
	}

	childEnclosing := enclosingID
	switch n.Type() {
	case "class_declaration":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			id := b.addEntity(n, graphmodel.EntityClass, b.text(nameNode))
			b.setVisibility(id, hasExport(n))
			if heritage := n.ChildByFieldName("superclass"); heritage != nil {
				b.addRelationship(id, b.resolveTypeRef(b.text(heritage)), graphmodel.RelExtends)
			}
		}
	case "interface_declaration":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			b.addEntity(n, graphmodel.EntityInterface, b.text(nameNode))
		}
	case "function_declaration":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			id := b.addEntity(n, graphmodel.EntityFunction, b.text(nameNode))
			b.setVisibility(id, hasExport(n))
			childEnclosing = id
		}
	case "method_definition":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			id := b.addEntity(n, graphmodel.EntityMethod, b.text(nameNode))
			if enclosingID != "" {
				b.addRelationship(enclosingID, id, graphmodel.RelContains)
			}
			childEnclosing = id
		}
	case "lexical_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() != "variable_declarator" {
				continue
			}
			nameNode := child.ChildByFieldName("name")
			valueNode := child.ChildByFieldName("value")
			if nameNode == nil || valueNode == nil {
				continue
			}
			if valueNode.Type() == "arrow_function" || valueNode.Type() == "function" {
				b.addEntity(child, graphmodel.EntityFunction, b.text(nameNode))
			}
		}
	case "import_statement":
		if sourceNode := n.ChildByFieldName("source"); sourceNode != nil {
			module := trimQuotes(b.text(sourceNode))
			b.addImportEdge(importRef(b.filePath), module)
		}
	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil && enclosingID != "" {
			b.addRelationship(enclosingID, b.resolveCall(calleeName(b, fn)), graphmodel.RelCalls)
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		walkJSFamily(b, budget, n.Child(i), childEnclosing)
	}
}

// calleeName reduces a call expression's function node to the bare
// name a local entity would be registered under: "obj.method(...)"
// resolves against "method", not the whole member-expression text.
func calleeName(b *builder, fn *sitter.Node) string {
	if fn.Type() == "member_expression" {
		if prop := fn.ChildByFieldName("property"); prop != nil {
			return b.text(prop)
		}
	}
	return b.text(fn)
}

func trimQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}
