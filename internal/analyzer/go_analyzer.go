package analyzer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// GoAnalyzer walks Go source with tree-sitter, grounded on the
// source's extractGoSymbols, generalized to emit graphmodel entities
// and relationships instead of Datalog facts.
type GoAnalyzer struct{}

func NewGoAnalyzer() *GoAnalyzer { return &GoAnalyzer{} }

func (a *GoAnalyzer) Language() string    { return "go" }
func (a *GoAnalyzer) Extensions() []string { return []string{".go"} }

func (a *GoAnalyzer) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, graphmodel.NewParserError(err, "parse go file %q", path)
	}
	defer tree.Close()

	b := newBuilder(path, a.Language(), content)
	budget := &walkBudget{}
	walkGo(b, budget, tree.RootNode(), "")
	if budget.truncated {
		b.errors = append(b.errors, graphmodel.ParseError{Message: depthExceededMsg})
	}
	return b.result(), nil
}

func walkGo(b *builder, budget *walkBudget, n *sitter.Node, enclosingID string) {
	if !budget.enter() {
		return
	}
	defer budget.leave()

	switch n.Type() {
	case "function_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			id := b.addEntity(n, graphmodel.EntityFunction, b.text(name))
			b.setVisibility(id, isUpperFirst(b.text(name)))
			if enclosingID != "" {
				b.addRelationship(enclosingID, id, graphmodel.RelContains)
			}
		}
	case "method_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			id := b.addEntity(n, graphmodel.EntityMethod, b.text(name))
			b.setVisibility(id, isUpperFirst(b.text(name)))
			if enclosingID != "" {
				b.addRelationship(enclosingID, id, graphmodel.RelContains)
			}
		}
	case "type_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			spec := n.NamedChild(i)
			if spec.Type() != "type_spec" {
				continue
			}
			nameNode := spec.ChildByFieldName("name")
			typeNode := spec.ChildByFieldName("type")
			if nameNode == nil {
				continue
			}
			name := b.text(nameNode)
			kind := graphmodel.EntityTypedef
			if typeNode != nil {
				switch typeNode.Type() {
				case "struct_type":
					kind = graphmodel.EntityStruct
				case "interface_type":
					kind = graphmodel.EntityInterface
				}
			}
			id := b.addEntity(spec, kind, name)
			b.setVisibility(id, isUpperFirst(name))
			if enclosingID != "" {
				b.addRelationship(enclosingID, id, graphmodel.RelContains)
			}
			if typeNode != nil && typeNode.Type() == "struct_type" {
				walkGoStructFields(b, typeNode, id)
			}
			if typeNode != nil && typeNode.Type() == "interface_type" {
				walkGoInterfaceMethods(b, typeNode, id)
			}
		}
	case "import_spec":
		if pathNode := n.ChildByFieldName("path"); pathNode != nil {
			importPath := strings.Trim(b.text(pathNode), "\"")
			if enclosingID == "" {
				// file-level import; attribute to a synthetic file-scope edge.
				b.addImportEdge(importRef(b.filePath), importPath)
			} else {
				b.addImportEdge(enclosingID, importPath)
			}
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
		walkGo(b, budget, n.Child(i), enclosingFor(n, enclosingID, b))
	}
}

// enclosingFor threads the right enclosing-entity ID to children:
// function/method bodies enclose their statements so nested calls
// attribute to the right caller.
func enclosingFor(n *sitter.Node, current string, b *builder) string {
	switch n.Type() {
	case "function_declaration", "method_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			loc := b.position(n)
			key := graphmodel.EntityKey{FilePath: b.filePath, Type: entityTypeFor(n), Name: b.text(name), Start: loc.Start.Index, End: loc.End.Index}
			return graphmodel.EntityID(key)
		}
	}
	return current
}

func entityTypeFor(n *sitter.Node) graphmodel.EntityType {
	if n.Type() == "method_declaration" {
		return graphmodel.EntityMethod
	}
	return graphmodel.EntityFunction
}

func walkGoStructFields(b *builder, structType *sitter.Node, ownerID string) {
	block := structType.ChildByFieldName("fields")
	if block == nil {
		return
	}
	for i := 0; i < int(block.NamedChildCount()); i++ {
		field := block.NamedChild(i)
		if field.Type() != "field_declaration" {
			continue
		}
		nameNode := field.ChildByFieldName("name")
		if nameNode == nil {
			// No name field means this is an embedded field: its "name"
			// is the embedded type itself (anonymous/promoted field).
			typeNode := field.ChildByFieldName("type")
			if typeNode == nil {
				continue
			}
			embeddedName := embeddedTypeName(b.text(typeNode))
			if embeddedName == "" {
				continue
			}
			id := b.addEntity(field, graphmodel.EntityField, embeddedName)
			b.addRelationship(ownerID, id, graphmodel.RelContains)
			b.addRelationship(ownerID, b.resolveTypeRef(embeddedName), graphmodel.RelReferences)
			continue
		}
		id := b.addEntity(field, graphmodel.EntityField, b.text(nameNode))
		b.addRelationship(ownerID, id, graphmodel.RelContains)
	}
}

// embeddedTypeName strips a pointer marker and package qualifier from
// an embedded field's type text (e.g. "*pkg.Base" -> "Base").
func embeddedTypeName(typeText string) string {
	name := strings.TrimPrefix(typeText, "*")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

func walkGoInterfaceMethods(b *builder, ifaceType *sitter.Node, ownerID string) {
	for i := 0; i < int(ifaceType.NamedChildCount()); i++ {
		spec := ifaceType.NamedChild(i)
		if spec.Type() != "method_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		id := b.addEntity(spec, graphmodel.EntityMethod, b.text(nameNode))
		b.addRelationship(ownerID, id, graphmodel.RelContains)
	}
}
