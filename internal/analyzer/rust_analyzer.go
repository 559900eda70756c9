package analyzer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// RustAnalyzer is grounded on the source's extractRustSymbols.
type RustAnalyzer struct{}

func NewRustAnalyzer() *RustAnalyzer { return &RustAnalyzer{} }

func (a *RustAnalyzer) Language() string     { return "rust" }
func (a *RustAnalyzer) Extensions() []string { return []string{".rs"} }

func (a *RustAnalyzer) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(rust.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, graphmodel.NewParserError(err, "parse rust file %q", path)
	}
	defer tree.Close()

	b := newBuilder(path, a.Language(), content)
	budget := &walkBudget{}
	walkRust(b, budget, tree.RootNode(), "")
	if budget.truncated {
		b.errors = append(b.errors, graphmodel.ParseError{Message: depthExceededMsg})
	}
	return b.result(), nil
}

func rustHasPubVisibility(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "visibility_modifier" {
			return true
		}
	}
	return false
}

// walkRust threads enclosingID, the function_item whose body n sits in,
// so call expressions attribute to the right caller.
func walkRust(b *builder, budget *walkBudget, n *sitter.Node, enclosingID string) {
	if !budget.enter() {
		return
	}
	defer budget.leave()

	childEnclosing := enclosingID
	switch n.Type() {
	case "function_item":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			id := b.addEntity(n, graphmodel.EntityFunction, b.text(nameNode))
			b.setVisibility(id, rustHasPubVisibility(n))
			childEnclosing = id
		}
	case "struct_item":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			id := b.addEntity(n, graphmodel.EntityStruct, b.text(nameNode))
			b.setVisibility(id, rustHasPubVisibility(n))
		}
	case "enum_item":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			id := b.addEntity(n, graphmodel.EntityEnum, b.text(nameNode))
			b.setVisibility(id, rustHasPubVisibility(n))
		}
	case "trait_item":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			b.addEntity(n, graphmodel.EntityTrait, b.text(nameNode))
		}
	case "impl_item":
		typeNode := n.ChildByFieldName("type")
		traitNode := n.ChildByFieldName("trait")
		if typeNode != nil && traitNode != nil {
			b.addRelationship(b.resolveTypeRef(b.text(typeNode)), b.resolveTypeRef(b.text(traitNode)), graphmodel.RelImplements)
		}
	case "mod_item":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			b.addEntity(n, graphmodel.EntityModule, b.text(nameNode))
		}
	case "use_declaration":
		if argNode := n.ChildByFieldName("argument"); argNode != nil {
			usePath := b.text(argNode)
			if crate := strings.SplitN(usePath, "::", 2)[0]; crate != "" {
				b.addImportEdge(importRef(b.filePath), crate)
			}
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
		walkRust(b, budget, n.Child(i), childEnclosing)
	}
}
