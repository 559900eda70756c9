package analyzer

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

type JavaAnalyzer struct{}

func NewJavaAnalyzer() *JavaAnalyzer { return &JavaAnalyzer{} }

func (a *JavaAnalyzer) Language() string     { return "java" }
func (a *JavaAnalyzer) Extensions() []string { return []string{".java"} }

func (a *JavaAnalyzer) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, graphmodel.NewParserError(err, "parse java file %q", path)
	}
	defer tree.Close()

	b := newBuilder(path, a.Language(), content)
	budget := &walkBudget{}
	walkJava(b, budget, tree.RootNode(), "")
	if budget.truncated {
		b.errors = append(b.errors, graphmodel.ParseError{Message: depthExceededMsg})
	}
	return b.result(), nil
}

func walkJava(b *builder, budget *walkBudget, n *sitter.Node, enclosingID string) {
	if !budget.enter() {
		return
	}
	defer budget.leave()

	childEnclosing := enclosingID
	switch n.Type() {
	case "class_declaration":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			id := b.addEntity(n, graphmodel.EntityClass, b.text(nameNode))
			if enclosingID != "" {
				b.addRelationship(enclosingID, id, graphmodel.RelContains)
			}
			if superclass := n.ChildByFieldName("superclass"); superclass != nil {
				b.addRelationship(id, b.resolveTypeRef(b.text(superclass)), graphmodel.RelExtends)
			}
			if interfaces := n.ChildByFieldName("interfaces"); interfaces != nil {
				for i := 0; i < int(interfaces.NamedChildCount()); i++ {
					b.addRelationship(id, b.resolveTypeRef(b.text(interfaces.NamedChild(i))), graphmodel.RelImplements)
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
	case "import_declaration":
		if pathNode := n.NamedChild(0); pathNode != nil {
			b.addImportEdge(importRef(b.filePath), b.text(pathNode))
		}
	case "method_invocation":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil && enclosingID != "" {
			b.addRelationship(enclosingID, b.resolveCall(b.text(nameNode)), graphmodel.RelCalls)
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		walkJava(b, budget, n.Child(i), childEnclosing)
	}
}
