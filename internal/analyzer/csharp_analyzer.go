package analyzer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

type CSharpAnalyzer struct{}

func NewCSharpAnalyzer() *CSharpAnalyzer { return &CSharpAnalyzer{} }

func (a *CSharpAnalyzer) Language() string     { return "csharp" }
func (a *CSharpAnalyzer) Extensions() []string { return []string{".cs"} }

func (a *CSharpAnalyzer) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(csharp.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, graphmodel.NewParserError(err, "parse c# file %q", path)
	}
	defer tree.Close()

	b := newBuilder(path, a.Language(), content)
	budget := &walkBudget{}
	walkCSharp(b, budget, tree.RootNode(), "")
	if budget.truncated {
		b.errors = append(b.errors, graphmodel.ParseError{Message: depthExceededMsg})
	}
	return b.result(), nil
}

func walkCSharp(b *builder, budget *walkBudget, n *sitter.Node, enclosingID string) {
	if !budget.enter() {
		return
	}
	defer budget.leave()

	childEnclosing := enclosingID
	switch n.Type() {
	case "class_declaration", "struct_declaration":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			typ := graphmodel.EntityClass
			if n.Type() == "struct_declaration" {
				typ = graphmodel.EntityStruct
			}
			id := b.addEntity(n, typ, b.text(nameNode))
			if enclosingID != "" {
				b.addRelationship(enclosingID, id, graphmodel.RelContains)
			}
			if bases := n.ChildByFieldName("bases"); bases != nil {
				for i := 0; i < int(bases.NamedChildCount()); i++ {
					b.addRelationship(id, b.resolveTypeRef(b.text(bases.NamedChild(i))), graphmodel.RelExtends)
				}
			}
			childEnclosing = id
		}
	case "interface_declaration":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			id := b.addEntity(n, graphmodel.EntityInterface, b.text(nameNode))
			if enclosingID != "" {
				b.addRelationship(enclosingID, id, graphmodel.RelContains)
			}
			childEnclosing = id
		}
	case "method_declaration":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil && enclosingID != "" {
			id := b.addEntity(n, graphmodel.EntityMethod, b.text(nameNode))
			b.addRelationship(enclosingID, id, graphmodel.RelContains)
			childEnclosing = id
		}
	case "using_directive":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			b.addImportEdge(importRef(b.filePath), b.text(nameNode))
		}
	case "invocation_expression":
		if fn := n.ChildByFieldName("function"); fn != nil && enclosingID != "" {
			name := b.text(fn)
			if idx := strings.LastIndex(name, "."); idx >= 0 {
				name = name[idx+1:]
			}
			b.addRelationship(enclosingID, b.resolveCall(name), graphmodel.RelCalls)
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		walkCSharp(b, budget, n.Child(i), childEnclosing)
	}
}
