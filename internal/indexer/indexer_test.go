package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/eventbus"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphstore"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/parser"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/storage"
)

func newTestIndexer(t *testing.T) (*Indexer, *graphstore.Store, *eventbus.Bus) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	engine, err := storage.Open(dbPath, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	store := graphstore.New(engine)
	p, err := parser.New(parser.Options{})
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	bus := eventbus.New()
	return New(p, store, bus, DefaultOptions()), store, bus
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestIndexDirectoryWalksAndBatchesFiles(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc F() {}\n")
	writeFile(t, dir, "b.go", "package a\n\nfunc G() {}\n")
	writeFile(t, dir, "README.unknownext", "not code")

	res, err := ix.IndexDirectory(context.Background(), dir, IndexOptions{})
	if err != nil {
		t.Fatalf("index directory: %v", err)
	}
	if res.FilesIndexed != 2 {
		t.Fatalf("expected 2 files indexed, got %d (%+v)", res.FilesIndexed, res.Errors)
	}
	if res.Entities == 0 {
		t.Fatal("expected at least one entity recorded")
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.EntityCount == 0 {
		t.Fatal("expected entities persisted to the store")
	}
}

func TestIndexDirectorySkipsIgnoredDirs(t *testing.T) {
	ix, _, _ := newTestIndexer(t)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "vendor"), 0o755); err != nil {
		t.Fatalf("mkdir vendor: %v", err)
	}
	writeFile(t, filepath.Join(dir, "vendor"), "skip.go", "package v\n")
	writeFile(t, dir, "keep.go", "package a\n")

	res, err := ix.IndexDirectory(context.Background(), dir, IndexOptions{})
	if err != nil {
		t.Fatalf("index directory: %v", err)
	}
	if res.FilesIndexed != 1 {
		t.Fatalf("expected only keep.go indexed, got %d", res.FilesIndexed)
	}
}

func TestIndexDirectoryExcludePatternsAreCallScoped(t *testing.T) {
	ix, _, _ := newTestIndexer(t)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "fixtures"), 0o755); err != nil {
		t.Fatalf("mkdir fixtures: %v", err)
	}
	writeFile(t, filepath.Join(dir, "fixtures"), "skip.go", "package f\n")
	writeFile(t, dir, "keep.go", "package a\n")

	res, err := ix.IndexDirectory(context.Background(), dir, IndexOptions{ExcludePatterns: []string{"fixtures"}})
	if err != nil {
		t.Fatalf("index directory: %v", err)
	}
	if res.FilesIndexed != 1 {
		t.Fatalf("expected only keep.go indexed under call-scoped exclude, got %d", res.FilesIndexed)
	}

	res2, err := ix.IndexDirectory(context.Background(), dir, IndexOptions{})
	if err != nil {
		t.Fatalf("index directory without exclude: %v", err)
	}
	if res2.FilesIndexed != 1 || res2.FilesSkipped != 1 {
		t.Fatalf("expected fixtures/skip.go indexed and unchanged keep.go skipped once the call-scoped exclude is dropped, got indexed=%d skipped=%d", res2.FilesIndexed, res2.FilesSkipped)
	}
}

func TestIndexDirectoryForceFullReindexesUnchangedFiles(t *testing.T) {
	ix, _, _ := newTestIndexer(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc F() {}\n")

	if _, err := ix.IndexDirectory(context.Background(), dir, IndexOptions{}); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	res, err := ix.IndexDirectory(context.Background(), dir, IndexOptions{})
	if err != nil {
		t.Fatalf("incremental re-index: %v", err)
	}
	if res.FilesIndexed != 0 || res.FilesSkipped != 1 {
		t.Fatalf("expected unchanged file skipped by default, got indexed=%d skipped=%d", res.FilesIndexed, res.FilesSkipped)
	}

	res2, err := ix.IndexDirectory(context.Background(), dir, IndexOptions{ForceFull: true})
	if err != nil {
		t.Fatalf("force-full re-index: %v", err)
	}
	if res2.FilesIndexed != 1 || res2.FilesSkipped != 0 {
		t.Fatalf("expected unchanged file reindexed under ForceFull, got indexed=%d skipped=%d", res2.FilesIndexed, res2.FilesSkipped)
	}
}

func TestIndexFileSkipsUnchangedContent(t *testing.T) {
	ix, _, _ := newTestIndexer(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "package a\n\nfunc F() {}\n")

	if _, err := ix.IndexFile(context.Background(), path); err != nil {
		t.Fatalf("first index: %v", err)
	}
	res, err := ix.IndexFile(context.Background(), path)
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result for unchanged content, got %+v", res)
	}
}

func TestIndexFileReindexesOnContentChange(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "package a\n\nfunc F() {}\n")

	if _, err := ix.IndexFile(context.Background(), path); err != nil {
		t.Fatalf("first index: %v", err)
	}
	writeFile(t, dir, "a.go", "package a\n\nfunc F() {}\n\nfunc H() {}\n")
	res, err := ix.IndexFile(context.Background(), path)
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if res == nil {
		t.Fatal("expected a non-nil result after content changed")
	}

	fi, err := store.GetFileInfo(context.Background(), path)
	if err != nil {
		t.Fatalf("get file info: %v", err)
	}
	if fi.EntityCount != len(res.Entities) {
		t.Fatalf("expected tracked entity count %d, got %d", len(res.Entities), fi.EntityCount)
	}
}

func TestIndexFilePublishesNewEntitiesEvent(t *testing.T) {
	ix, _, bus := newTestIndexer(t)
	ch, _ := bus.Subscribe(TopicNewEntities, 4)

	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "package a\n\nfunc F() {}\n")

	if _, err := ix.IndexFile(context.Background(), path); err != nil {
		t.Fatalf("index: %v", err)
	}

	select {
	case ev := <-ch:
		payload, ok := ev.Payload.(NewEntitiesEvent)
		if !ok || payload.FilePath != path || len(payload.EntityIDs) == 0 {
			t.Fatalf("unexpected payload: %+v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for new entities event")
	}
}

func TestRemoveFileDeletesTrackedEntities(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "package a\n\nfunc F() {}\n")

	if _, err := ix.IndexFile(context.Background(), path); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := ix.RemoveFile(context.Background(), path); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if _, err := store.GetFileInfo(context.Background(), path); err == nil {
		t.Fatal("expected file info to be gone after removal, but it was still found")
	}
	ents, err := store.FindEntities(context.Background(), graphstore.EntityFilter{FilePath: path})
	if err != nil {
		t.Fatalf("find entities: %v", err)
	}
	if len(ents) != 0 {
		t.Fatalf("expected no entities left for %s after removal, got %d", path, len(ents))
	}
}
