package analyzer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// CAnalyzer applies the same recursive-walk style as the Go/Rust
// analyzers to the C grammar, the tree-sitter binding family the
// source already depends on for its supported languages.
type CAnalyzer struct{}

func NewCAnalyzer() *CAnalyzer { return &CAnalyzer{} }

func (a *CAnalyzer) Language() string     { return "c" }
func (a *CAnalyzer) Extensions() []string { return []string{".c", ".h"} }

func (a *CAnalyzer) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, graphmodel.NewParserError(err, "parse c file %q", path)
	}
	defer tree.Close()

	b := newBuilder(path, a.Language(), content)
	budget := &walkBudget{}
	walkC(b, budget, tree.RootNode(), "")
	if budget.truncated {
		b.errors = append(b.errors, graphmodel.ParseError{Message: depthExceededMsg})
	}
	return b.result(), nil
}

// functionNameFromDeclarator descends through the C grammar's nested
// declarator wrapping (pointer_declarator, function_declarator, ...)
// to find the identifier.
func functionNameFromDeclarator(b *builder, n *sitter.Node) string {
	for n != nil {
		if n.Type() == "identifier" {
			return b.text(n)
		}
		if decl := n.ChildByFieldName("declarator"); decl != nil {
			n = decl
			continue
		}
		break
	}
	return ""
}

// walkC threads enclosingID, the function_definition whose body n sits
// in, so call expressions attribute to the right caller.
func walkC(b *builder, budget *walkBudget, n *sitter.Node, enclosingID string) {
	if !budget.enter() {
		return
	}
	defer budget.leave()

	childEnclosing := enclosingID
	switch n.Type() {
	case "function_definition":
		if declarator := n.ChildByFieldName("declarator"); declarator != nil {
			if name := functionNameFromDeclarator(b, declarator); name != "" {
				childEnclosing = b.addEntity(n, graphmodel.EntityFunction, name)
			}
		}
	case "struct_specifier":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			b.addEntity(n, graphmodel.EntityStruct, b.text(nameNode))
		}
	case "enum_specifier":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			b.addEntity(n, graphmodel.EntityEnum, b.text(nameNode))
		}
	case "preproc_include":
		if pathNode := n.NamedChild(0); pathNode != nil {
			header := strings.Trim(b.text(pathNode), "<>\"")
			b.addImportEdge(importRef(b.filePath), header)
		}
	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil && enclosingID != "" {
			b.addRelationship(enclosingID, b.resolveCall(b.text(fn)), graphmodel.RelCalls)
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		walkC(b, budget, n.Child(i), childEnclosing)
	}
}
