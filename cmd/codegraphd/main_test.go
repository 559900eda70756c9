package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/config"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()
	w.Close()
	os.Stdout = orig
	return <-done
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.DefaultConfig()
	c.Database.Path = filepath.Join(t.TempDir(), "graph.db")
	c.Vector.Backend = "fallback"
	c.Logging.Dir = ""
	return c
}

func writeSource(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n\nfunc F() {}\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
}

func TestRunIndexReportsCounts(t *testing.T) {
	cfg = testConfig(t)
	dir := t.TempDir()
	writeSource(t, dir)

	out := captureStdout(t, func() {
		if err := runIndex(&cobra.Command{}, []string{dir}); err != nil {
			t.Fatalf("runIndex: %v", err)
		}
	})

	if !strings.Contains(out, "indexed 1") {
		t.Fatalf("expected output to report 1 file indexed, got: %s", out)
	}
}

func TestRunQueryGetGraphHealth(t *testing.T) {
	cfg = testConfig(t)
	dir := t.TempDir()
	writeSource(t, dir)

	if err := runIndex(&cobra.Command{}, []string{dir}); err != nil {
		t.Fatalf("runIndex: %v", err)
	}

	queryTool = "get_graph_health"
	queryArgs = "{}"
	out := captureStdout(t, func() {
		if err := runQuery(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runQuery: %v", err)
		}
	})

	if !strings.Contains(out, "entity_count") && !strings.Contains(out, "EntityCount") {
		t.Fatalf("expected graph health JSON in output, got: %s", out)
	}
}

func TestRunResetClearsStore(t *testing.T) {
	cfg = testConfig(t)
	dir := t.TempDir()
	writeSource(t, dir)

	if err := runIndex(&cobra.Command{}, []string{dir}); err != nil {
		t.Fatalf("runIndex: %v", err)
	}

	out := captureStdout(t, func() {
		if err := runReset(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runReset: %v", err)
		}
	})
	if !strings.Contains(out, "reset") {
		t.Fatalf("expected reset confirmation, got: %s", out)
	}
}
