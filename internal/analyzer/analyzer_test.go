package analyzer

import (
	"context"
	"strings"
	"testing"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

func TestRegistryDispatchesByExtension(t *testing.T) {
	r := NewRegistry()
	a, ok := r.For("foo/bar.go")
	if !ok || a.Language() != "go" {
		t.Fatalf("expected go analyzer for .go, got %v ok=%v", a, ok)
	}
	if _, ok := r.For("README.unknownext"); ok {
		t.Fatal("expected no analyzer for unknown extension")
	}
}

func TestGoAnalyzerExtractsFunctionsAndStructs(t *testing.T) {
	src := []byte(`package sample

type Widget struct {
	Name string
}

func NewWidget() *Widget {
	return &Widget{}
}

func (w *Widget) Render() string {
	return w.Name
}
`)
	a := NewGoAnalyzer()
	res, err := a.Parse(context.Background(), "sample.go", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var sawStruct, sawFunc, sawMethod bool
	for _, e := range res.Entities {
		switch {
		case e.Type == graphmodel.EntityStruct && e.Name == "Widget":
			sawStruct = true
		case e.Type == graphmodel.EntityFunction && e.Name == "NewWidget":
			sawFunc = true
		case e.Type == graphmodel.EntityMethod && e.Name == "Render":
			sawMethod = true
		}
	}
	if !sawStruct || !sawFunc || !sawMethod {
		t.Fatalf("expected struct+function+method entities, got %+v", res.Entities)
	}
}

func TestPythonAnalyzerExtractsClassAndBase(t *testing.T) {
	src := []byte(`class Animal:
    pass

class Dog(Animal):
    def bark(self):
        pass
`)
	a := NewPythonAnalyzer()
	res, err := a.Parse(context.Background(), "sample.py", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var sawExtends bool
	for _, r := range res.Relationships {
		if r.Type == graphmodel.RelExtends {
			sawExtends = true
		}
	}
	if !sawExtends {
		t.Fatalf("expected an extends relationship for Dog(Animal), got %+v", res.Relationships)
	}
}

func TestVBAAnalyzerExtractsSubsAndModule(t *testing.T) {
	src := []byte("Attribute VB_Name = \"Module1\"\nPublic Sub DoThing()\nEnd Sub\n")
	a := NewVBAAnalyzer()
	res, err := a.Parse(context.Background(), "Module1.bas", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var sawModule, sawSub bool
	for _, e := range res.Entities {
		if e.Type == graphmodel.EntityModule && e.Name == "Module1" {
			sawModule = true
		}
		if e.Type == graphmodel.EntityFunction && e.Name == "DoThing" {
			sawSub = true
		}
	}
	if !sawModule || !sawSub {
		t.Fatalf("expected module+sub entities, got %+v", res.Entities)
	}
}

func TestMarkdownAnalyzerBuildsHeadingOutline(t *testing.T) {
	src := []byte("# Title\n\n## Section A\n\ntext\n\n## Section B\n")
	a := NewMarkdownAnalyzer()
	res, err := a.Parse(context.Background(), "doc.md", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Entities) != 4 { // document + 3 headings
		t.Fatalf("expected 4 entities (doc+3 headings), got %d: %+v", len(res.Entities), res.Entities)
	}
	if len(res.Relationships) != 3 {
		t.Fatalf("expected 3 contains edges, got %d", len(res.Relationships))
	}
}

func TestRegistryParseTimesOutOnSlowAnalyzer(t *testing.T) {
	r := &Registry{byExt: map[string]Analyzer{".slow": slowAnalyzer{}}}
	res, err := r.Parse(context.Background(), "x.slow", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Truncated {
		t.Fatal("expected truncated result on timeout")
	}
}

type slowAnalyzer struct{}

func (slowAnalyzer) Language() string     { return "slow" }
func (slowAnalyzer) Extensions() []string { return []string{".slow"} }
func (slowAnalyzer) Parse(ctx context.Context, path string, content []byte) (*graphmodel.ParseResult, error) {
	<-ctx.Done()
	return &graphmodel.ParseResult{}, nil
}

func TestWalkBudgetStopsAtMaxDepth(t *testing.T) {
	b := &walkBudget{}
	for i := 0; i < MaxDepth; i++ {
		if !b.enter() {
			t.Fatalf("budget exhausted early at depth %d", i)
		}
	}
	if b.enter() {
		t.Fatal("expected budget to refuse entry past MaxDepth")
	}
	if !b.truncated {
		t.Fatal("expected truncated flag set")
	}
}

func TestTrimQuotesHandlesAllQuoteStyles(t *testing.T) {
	for _, s := range []string{`"mod"`, `'mod'`, "`mod`"} {
		if got := trimQuotes(s); got != "mod" {
			t.Fatalf("trimQuotes(%s) = %q, want mod", s, got)
		}
	}
	if got := trimQuotes("bare"); got != "bare" {
		t.Fatalf("trimQuotes should pass through unquoted strings, got %q", got)
	}
}

func TestGoAnalyzerRecordsImportEdge(t *testing.T) {
	src := []byte(`package sample

import "fmt"

func main() {
	fmt.Println("hi")
}
`)
	a := NewGoAnalyzer()
	res, err := a.Parse(context.Background(), "sample.go", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	found := false
	for _, r := range res.Relationships {
		if r.Type == graphmodel.RelImports {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an imports edge, got %+v", res.Relationships)
	}
	if !strings.Contains(res.Language, "go") {
		t.Fatalf("expected language go, got %s", res.Language)
	}
}
