package analyzer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/kotlin"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

type KotlinAnalyzer struct{}

func NewKotlinAnalyzer() *KotlinAnalyzer { return &KotlinAnalyzer{} }

func (a *KotlinAnalyzer) Language() string     { return "kotlin" }
func (a *KotlinAnalyzer) Extensions() []string { return []string{".kt", ".kts"} }

func (a *KotlinAnalyzer) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(kotlin.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, graphmodel.NewParserError(err, "parse kotlin file %q", path)
	}
	defer tree.Close()

	b := newBuilder(path, a.Language(), content)
	budget := &walkBudget{}
	walkKotlin(b, budget, tree.RootNode(), "")
	if budget.truncated {
		b.errors = append(b.errors, graphmodel.ParseError{Message: depthExceededMsg})
	}
	return b.result(), nil
}

func walkKotlin(b *builder, budget *walkBudget, n *sitter.Node, enclosingID string) {
	if !budget.enter() {
		return
	}
	defer budget.leave()

	childEnclosing := enclosingID
	switch n.Type() {
	case "class_declaration":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			typ := graphmodel.EntityClass
			id := b.addEntity(n, typ, b.text(nameNode))
			if enclosingID != "" {
				b.addRelationship(enclosingID, id, graphmodel.RelContains)
			}
			childEnclosing = id
		}
	case "function_declaration":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			typ := graphmodel.EntityFunction
			if enclosingID != "" {
				typ = graphmodel.EntityMethod
			}
			id := b.addEntity(n, typ, b.text(nameNode))
			if enclosingID != "" {
				b.addRelationship(enclosingID, id, graphmodel.RelContains)
			}
			childEnclosing = id
		}
	case "import_header":
		if identNode := n.NamedChild(0); identNode != nil {
			b.addImportEdge(importRef(b.filePath), b.text(identNode))
		}
	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil && enclosingID != "" {
			name := b.text(fn)
			if idx := strings.LastIndex(name, "."); idx >= 0 {
				name = name[idx+1:]
			}
			b.addRelationship(enclosingID, b.resolveCall(name), graphmodel.RelCalls)
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		walkKotlin(b, budget, n.Child(i), childEnclosing)
	}
}
