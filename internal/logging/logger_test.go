package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitializeWritesCategoryFile(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, "debug"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Get(CategoryStorage).Info("opened %s", "graph.db")
	CloseAll()

	data, err := os.ReadFile(filepath.Join(dir, "storage.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty log file")
	}
}

func TestInitializeEmptyDirIsNoop(t *testing.T) {
	if err := Initialize("", "info"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()
	// Must not panic or attempt to write a file.
	Get(CategoryParser).Error("should be dropped silently")
}

func TestTimerStopReturnsNonNegativeDuration(t *testing.T) {
	dir := t.TempDir()
	_ = Initialize(dir, "debug")
	defer CloseAll()

	timer := StartTimer(CategoryIndexer, "scan")
	d := timer.Stop()
	if d < 0 {
		t.Fatalf("expected non-negative duration, got %v", d)
	}
}
