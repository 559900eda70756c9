package analyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// VBAAnalyzer is regex-based per spec.md: no tree-sitter grammar for
// VBA is wired in this module's dependency pack.
type VBAAnalyzer struct{}

func NewVBAAnalyzer() *VBAAnalyzer { return &VBAAnalyzer{} }

func (a *VBAAnalyzer) Language() string     { return "vba" }
func (a *VBAAnalyzer) Extensions() []string { return []string{".bas", ".cls", ".frm", ".vba"} }

var (
	vbaSubRe    = regexp.MustCompile(`(?im)^\s*(?:Public|Private|Friend)?\s*Sub\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	vbaFuncRe   = regexp.MustCompile(`(?im)^\s*(?:Public|Private|Friend)?\s*Function\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	vbaModRe    = regexp.MustCompile(`(?im)^\s*Attribute\s+VB_Name\s*=\s*"([^"]+)"`)
	vbaImportRe = regexp.MustCompile(`(?im)^\s*Declare\s+(?:PtrSafe\s+)?(?:Sub|Function)\s+[A-Za-z0-9_]+\s+Lib\s+"([^"]+)"`)
)

func (a *VBAAnalyzer) Parse(_ context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	b := newBuilder(path, a.Language(), content)
	text := string(content)
	lineOffsets := lineStartOffsets(text)

	moduleID := ""
	if m := vbaModRe.FindStringSubmatchIndex(text); m != nil {
		name := text[m[2]:m[3]]
		moduleID = b.addEntityAt(spanFromOffsets(lineOffsets, m[0], m[1]), graphmodel.EntityModule, name)
	}

	for _, m := range vbaSubRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		id := b.addEntityAt(spanFromOffsets(lineOffsets, m[0], m[1]), graphmodel.EntityFunction, name)
		if moduleID != "" {
			b.addRelationship(moduleID, id, graphmodel.RelContains)
		}
	}
	for _, m := range vbaFuncRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		id := b.addEntityAt(spanFromOffsets(lineOffsets, m[0], m[1]), graphmodel.EntityFunction, name)
		if moduleID != "" {
			b.addRelationship(moduleID, id, graphmodel.RelContains)
		}
	}
	for _, m := range vbaImportRe.FindAllStringSubmatchIndex(text, -1) {
		lib := text[m[2]:m[3]]
		from := moduleID
		if from == "" {
			from = importRef(path)
		}
		b.addImportEdge(from, strings.TrimSuffix(lib, ".dll"))
	}

	return b.result(), nil
}

func lineStartOffsets(text string) []int {
	offsets := []int{0}
	for i, r := range text {
		if r == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

func lineColFor(offsets []int, byteOffset int) (line, col int) {
	lo, hi := 0, len(offsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if offsets[mid] <= byteOffset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1, byteOffset - offsets[lo] + 1
}

// spanFromOffsets is shared by the VBA and Markdown analyzers to turn
// a regexp match's byte range into a Location.
func spanFromOffsets(lineOffsets []int, start, end int) graphmodel.Location {
	sl, sc := lineColFor(lineOffsets, start)
	el, ec := lineColFor(lineOffsets, end)
	return graphmodel.Location{
		Start: graphmodel.Position{Line: sl, Column: sc, Index: start},
		End:   graphmodel.Position{Line: el, Column: ec, Index: end},
	}
}
