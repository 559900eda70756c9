package analyzer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// CPPAnalyzer extends the C walker with classes, namespaces, and
// base-class lists.
type CPPAnalyzer struct{}

func NewCPPAnalyzer() *CPPAnalyzer { return &CPPAnalyzer{} }

func (a *CPPAnalyzer) Language() string     { return "cpp" }
func (a *CPPAnalyzer) Extensions() []string { return []string{".cpp", ".cc", ".cxx", ".hpp", ".hh"} }

func (a *CPPAnalyzer) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(cpp.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, graphmodel.NewParserError(err, "parse c++ file %q", path)
	}
	defer tree.Close()

	b := newBuilder(path, a.Language(), content)
	budget := &walkBudget{}
	walkCPP(b, budget, tree.RootNode(), "")
	if budget.truncated {
		b.errors = append(b.errors, graphmodel.ParseError{Message: depthExceededMsg})
	}
	return b.result(), nil
}

// walkCPP threads enclosingID, the function_definition whose body n
// sits in, so call expressions attribute to the right caller.
func walkCPP(b *builder, budget *walkBudget, n *sitter.Node, enclosingID string) {
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
	case "class_specifier", "struct_specifier":
		nameNode := n.ChildByFieldName("name")
		if nameNode == nil {
			break
		}
		typ := graphmodel.EntityClass
		if n.Type() == "struct_specifier" {
			typ = graphmodel.EntityStruct
		}
		id := b.addEntity(n, typ, b.text(nameNode))
		if baseList := n.ChildByFieldName("base_class_clause"); baseList != nil {
			for i := 0; i < int(baseList.NamedChildCount()); i++ {
				base := baseList.NamedChild(i)
				if base.Type() == "base_class_clause" || base.Type() == "qualified_identifier" || base.Type() == "type_identifier" {
					b.addRelationship(id, b.resolveTypeRef(b.text(base)), graphmodel.RelExtends)
				}
			}
		}
	case "namespace_definition":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			b.addEntity(n, graphmodel.EntityModule, b.text(nameNode))
		}
	case "preproc_include":
		if pathNode := n.NamedChild(0); pathNode != nil {
			header := strings.Trim(b.text(pathNode), "<>\"")
			b.addImportEdge(importRef(b.filePath), header)
		}
	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil && enclosingID != "" {
			name := b.text(fn)
			if idx := strings.LastIndex(name, "::"); idx >= 0 {
				name = name[idx+2:]
			}
			b.addRelationship(enclosingID, b.resolveCall(name), graphmodel.RelCalls)
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		walkCPP(b, budget, n.Child(i), childEnclosing)
	}
}
