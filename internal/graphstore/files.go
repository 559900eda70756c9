package graphstore

import (
	"context"
	"time"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// UpdateFileInfo upserts the tracking row for a file after it has been
// (re)indexed.
func (s *Store) UpdateFileInfo(ctx context.Context, fi graphmodel.FileInfo) error {
	lastIndexed := fi.LastIndexed
	if lastIndexed.IsZero() {
		lastIndexed = time.Now()
	}
	_, err := s.engine.DB().ExecContext(ctx, `
INSERT INTO files (path, hash, last_indexed, entity_count) VALUES (?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, last_indexed = excluded.last_indexed, entity_count = excluded.entity_count
`, fi.Path, fi.Hash, formatTime(lastIndexed), fi.EntityCount)
	if err != nil {
		return graphmodel.NewStorageError(err, "update file info %q", fi.Path)
	}
	return nil
}

// DeleteFileInfo removes the tracking row for path, used alongside
// DeleteEntitiesByFile when a source file is deleted outright rather
// than re-indexed.
func (s *Store) DeleteFileInfo(ctx context.Context, path string) error {
	if _, err := s.engine.DB().ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return graphmodel.NewStorageError(err, "delete file info %q", path)
	}
	return nil
}
