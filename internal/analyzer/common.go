package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// builder accumulates entities and relationships for one file and
// turns itself into a graphmodel.ParseResult. Shared by every
// tree-sitter analyzer so each one only needs to supply a language
// grammar and a node-type switch.
type builder struct {
	filePath string
	language string
	content  []byte
	start    time.Time

	entities []graphmodel.Entity
	rels     []graphmodel.Relationship
	errors   []graphmodel.ParseError

	// byName indexes every entity added so far by its bare name, so a
	// call or type reference can resolve against something this file
	// already defines instead of always falling back to an external
	// placeholder. Last-defined-wins is good enough: this is a
	// same-file heuristic, not full scope resolution, and an ambiguous
	// name is more likely to collide with a just-declared local than an
	// earlier one.
	byName map[string]string
}

func newBuilder(filePath, language string, content []byte) *builder {
	return &builder{filePath: filePath, language: language, content: content, start: time.Now(), byName: map[string]string{}}
}

func (b *builder) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(b.content)
}

func (b *builder) position(n *sitter.Node) graphmodel.Location {
	sp, ep := n.StartPoint(), n.EndPoint()
	return graphmodel.Location{
		Start: graphmodel.Position{Line: int(sp.Row) + 1, Column: int(sp.Column) + 1, Index: int(n.StartByte())},
		End:   graphmodel.Position{Line: int(ep.Row) + 1, Column: int(ep.Column) + 1, Index: int(n.EndByte())},
	}
}

// addEntity registers an entity for name/typ spanning node n and
// returns its deterministic ID, so callers can immediately wire
// relationships to it (e.g. a method's "contains" edge to its class).
func (b *builder) addEntity(n *sitter.Node, typ graphmodel.EntityType, name string) string {
	return b.addEntityAt(b.position(n), typ, name)
}

// addEntityAt is the tree-sitter-free counterpart of addEntity, used
// by the regex-based VBA and Markdown analyzers which have no parse
// tree to take a span from.
func (b *builder) addEntityAt(loc graphmodel.Location, typ graphmodel.EntityType, name string) string {
	key := graphmodel.EntityKey{FilePath: b.filePath, Type: typ, Name: name, Start: loc.Start.Index, End: loc.End.Index}
	id := graphmodel.EntityID(key)
	b.entities = append(b.entities, graphmodel.Entity{
		ID:        id,
		Name:      name,
		Type:      typ,
		FilePath:  b.filePath,
		Location:  loc,
		Language:  b.language,
		SizeBytes: int64(loc.End.Index - loc.Start.Index),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	b.byName[name] = id
	return id
}

// resolveLocal looks up name against every entity this file has
// produced so far. Returns ("", false) when nothing in the current
// file matches, so the caller can fall back to an external
// placeholder per spec.md's "resolved within the current file;
// otherwise ... against an external placeholder" rule.
func (b *builder) resolveLocal(name string) (string, bool) {
	id, ok := b.byName[name]
	return id, ok
}

// resolveCall resolves a call-expression callee name against entities
// already collected in this file, falling back to a synthetic
// "call:<name>" external placeholder when nothing local matches.
func (b *builder) resolveCall(name string) string {
	if id, ok := b.resolveLocal(name); ok {
		return id
	}
	return importRef("call:" + name)
}

// resolveTypeRef resolves a type/base-class reference name against
// entities already collected in this file, falling back to a synthetic
// "type:<name>" external placeholder when nothing local matches.
func (b *builder) resolveTypeRef(name string) string {
	if id, ok := b.resolveLocal(name); ok {
		return id
	}
	return importRef("type:" + name)
}

// setVisibility annotates the metadata of the entity with the given id.
// Tree-sitter grammars expose export/pub markers in different shapes
// per language, so callers compute the bool and hand it here rather
// than this package trying to generalize the check.
func (b *builder) setVisibility(id string, exported bool) {
	for i := range b.entities {
		if b.entities[i].ID == id {
			if b.entities[i].Metadata == nil {
				b.entities[i].Metadata = map[string]any{}
			}
			b.entities[i].Metadata["exported"] = exported
			return
		}
	}
}

// addRelationship records an edge; toID may reference an entity this
// file never defines (an import target, an external symbol) — the
// Graph Store resolves those into placeholder entities at insert time.
func (b *builder) addRelationship(fromID, toID string, typ graphmodel.RelationshipType) {
	rel := graphmodel.Relationship{FromID: fromID, ToID: toID, Type: typ, CreatedAt: time.Now()}
	rel.ID = graphmodel.RelationshipID(rel.Key())
	b.rels = append(b.rels, rel)
}

// importRef builds the synthetic external-entity ID an "imports" edge
// points at when the target isn't defined in this file.
func importRef(module string) string {
	key := graphmodel.EntityKey{FilePath: "<external>", Type: graphmodel.EntityExternal, Name: module}
	return graphmodel.EntityID(key)
}

func (b *builder) addImportEdge(fromID, module string) {
	b.addRelationship(fromID, importRef(module), graphmodel.RelImports)
}

func (b *builder) result() *graphmodel.ParseResult {
	sum := sha256.Sum256(b.content)
	return &graphmodel.ParseResult{
		FilePath:      b.filePath,
		Language:      b.language,
		Entities:      b.entities,
		Relationships: b.rels,
		ContentHash:   hex.EncodeToString(sum[:]),
		Timestamp:     time.Now(),
		ParseTimeMs:   time.Since(b.start).Milliseconds(),
		Errors:        b.errors,
	}
}

func isUpperFirst(s string) bool {
	return len(s) > 0 && s[0] >= 'A' && s[0] <= 'Z'
}
