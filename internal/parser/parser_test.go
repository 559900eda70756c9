package parser

import (
	"context"
	"testing"
)

func TestParseCachesByPathAndContentHash(t *testing.T) {
	p, err := New(Options{})
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	src := []byte("package sample\n\nfunc F() {}\n")

	if _, err := p.Parse(context.Background(), "a.go", src, ""); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.CacheLen() != 1 {
		t.Fatalf("expected 1 cache entry after first parse, got %d", p.CacheLen())
	}

	if _, err := p.Parse(context.Background(), "a.go", src, ""); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.CacheLen() != 1 {
		t.Fatalf("expected cache hit to not grow cache, got %d entries", p.CacheLen())
	}
}

func TestParseMissesCacheOnContentChange(t *testing.T) {
	p, err := New(Options{})
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	if _, err := p.Parse(context.Background(), "a.go", []byte("package a\n"), ""); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := p.Parse(context.Background(), "a.go", []byte("package a\n\nfunc G() {}\n"), ""); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.CacheLen() != 2 {
		t.Fatalf("expected 2 distinct cache entries for different content, got %d", p.CacheLen())
	}
}

// TestParseSameExternalHashDifferentContentNoAliasing is literal
// scenario S2: two calls sharing path and external_hash but differing
// bodies must not alias onto the same cached ParseResult.
func TestParseSameExternalHashDifferentContentNoAliasing(t *testing.T) {
	p, err := New(Options{})
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	const sharedExternalHash = "git-blob-deadbeef"

	first, err := p.Parse(context.Background(), "a.go", []byte("package a\n\nfunc F() {}\n"), sharedExternalHash)
	if err != nil {
		t.Fatalf("parse first: %v", err)
	}
	second, err := p.Parse(context.Background(), "a.go", []byte("package a\n\nfunc G() {}\nfunc H() {}\n"), sharedExternalHash)
	if err != nil {
		t.Fatalf("parse second: %v", err)
	}
	if p.CacheLen() != 2 {
		t.Fatalf("expected 2 distinct cache entries despite shared external hash, got %d", p.CacheLen())
	}
	if len(first.Entities) == len(second.Entities) {
		t.Fatalf("expected different entity counts for different bodies sharing an external hash, got %d == %d", len(first.Entities), len(second.Entities))
	}
}

func TestParseReturnsNilForUnsupportedExtension(t *testing.T) {
	p, err := New(Options{})
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	res, err := p.Parse(context.Background(), "data.bin", []byte{0, 1, 2}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result for unsupported extension, got %+v", res)
	}
}

func TestSupportsPath(t *testing.T) {
	p, err := New(Options{})
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	if !p.SupportsPath("main.go") {
		t.Fatal("expected .go to be supported")
	}
	if p.SupportsPath("image.png") {
		t.Fatal("expected .png to be unsupported")
	}
}

func TestPurgeClearsCache(t *testing.T) {
	p, err := New(Options{})
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	if _, err := p.Parse(context.Background(), "a.go", []byte("package a\n"), ""); err != nil {
		t.Fatalf("parse: %v", err)
	}
	p.Purge()
	if p.CacheLen() != 0 {
		t.Fatalf("expected empty cache after purge, got %d", p.CacheLen())
	}
}
