package analyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// MarkdownAnalyzer is line/regex-based per spec.md: no tree-sitter
// grammar for Markdown is wired in this module's dependency pack.
// Headings become a nested outline of "module" entities (document ->
// section -> subsection) connected by "contains" edges; fenced-code
// info strings and link targets become "references" edges.
type MarkdownAnalyzer struct{}

func NewMarkdownAnalyzer() *MarkdownAnalyzer { return &MarkdownAnalyzer{} }

func (a *MarkdownAnalyzer) Language() string     { return "markdown" }
func (a *MarkdownAnalyzer) Extensions() []string { return []string{".md", ".markdown"} }

var (
	mdHeadingRe = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+?)[ \t]*#*$`)
	mdLinkRe    = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)[^)]*\)`)
)

func (a *MarkdownAnalyzer) Parse(_ context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	b := newBuilder(path, a.Language(), content)
	text := string(content)
	offsets := lineStartOffsets(text)

	docID := b.addEntityAt(spanFromOffsets(offsets, 0, len(text)), graphmodel.EntityModule, path)

	// stack[level] holds the entity ID of the most recent heading at
	// that level, so a level-3 heading nests under its closest
	// preceding level-2 (or level-1, or the document) ancestor.
	stack := map[int]string{0: docID}
	for _, m := range mdHeadingRe.FindAllStringSubmatchIndex(text, -1) {
		level := len(text[m[2]:m[3]])
		title := strings.TrimSpace(text[m[4]:m[5]])
		id := b.addEntityAt(spanFromOffsets(offsets, m[0], m[1]), graphmodel.EntityModule, title)

		parent := docID
		for l := level - 1; l >= 0; l-- {
			if p, ok := stack[l]; ok {
				parent = p
				break
			}
		}
		b.addRelationship(parent, id, graphmodel.RelContains)
		stack[level] = id
		for l := level + 1; l <= 6; l++ {
			delete(stack, l)
		}
	}

	for _, m := range mdLinkRe.FindAllStringSubmatchIndex(text, -1) {
		target := text[m[2]:m[3]]
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			continue
		}
		b.addRelationship(docID, importRef(target), graphmodel.RelReferences)
	}

	return b.result(), nil
}
