package analyzer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// PythonAnalyzer is grounded on the source's extractPythonSymbols.
type PythonAnalyzer struct{}

func NewPythonAnalyzer() *PythonAnalyzer { return &PythonAnalyzer{} }

func (a *PythonAnalyzer) Language() string     { return "python" }
func (a *PythonAnalyzer) Extensions() []string { return []string{".py"} }

func (a *PythonAnalyzer) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, graphmodel.NewParserError(err, "parse python file %q", path)
	}
	defer tree.Close()

	b := newBuilder(path, a.Language(), content)
	budget := &walkBudget{}
	walkPython(b, budget, tree.RootNode(), "")
	if budget.truncated {
		b.errors = append(b.errors, graphmodel.ParseError{Message: depthExceededMsg})
	}
	return b.result(), nil
}

func walkPython(b *builder, budget *walkBudget, n *sitter.Node, enclosingClassID string) {
	if !budget.enter() {
		return
	}
	defer budget.leave()

	childEnclosing := enclosingClassID
	switch n.Type() {
	case "class_definition":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			id := b.addEntity(n, graphmodel.EntityClass, b.text(nameNode))
			if superclasses := n.ChildByFieldName("superclasses"); superclasses != nil {
				for i := 0; i < int(superclasses.NamedChildCount()); i++ {
					base := b.text(superclasses.NamedChild(i))
					if base != "" && base != "object" {
						b.addRelationship(id, b.resolveTypeRef(base), graphmodel.RelExtends)
					}
				}
			}
			childEnclosing = id
		}
	case "function_definition":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			typ := graphmodel.EntityFunction
			if enclosingClassID != "" {
				typ = graphmodel.EntityMethod
			}
			id := b.addEntity(n, typ, b.text(nameNode))
			if enclosingClassID != "" {
				b.addRelationship(enclosingClassID, id, graphmodel.RelContains)
			}
		}
	case "import_statement", "import_from_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "dotted_name" {
				module := b.text(child)
				b.addImportEdge(importRef(b.filePath), module)
			}
		}
	case "call":
		if fn := n.ChildByFieldName("function"); fn != nil && enclosingClassID != "" {
			name := b.text(fn)
			if idx := strings.LastIndex(name, "."); idx >= 0 {
				name = name[idx+1:]
			}
			b.addRelationship(enclosingClassID, b.resolveCall(name), graphmodel.RelCalls)
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		walkPython(b, budget, n.Child(i), childEnclosing)
	}
}
