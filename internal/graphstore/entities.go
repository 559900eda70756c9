package graphstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// UpsertEntity inserts or updates a single entity following the coalesce
// rule: overwrite name/type/file_path/location/metadata, coalesce hash
// (keep existing when the new value is empty), and advance updated_at
// only when a non-empty new hash differs from the stored one.
func (s *Store) UpsertEntity(ctx context.Context, e graphmodel.Entity) error {
	_, err := s.upsertEntitiesTx(ctx, s.engine.DB(), []graphmodel.Entity{e})
	return err
}

// upsertEntitiesTx performs the actual ON CONFLICT upsert against any
// *sql.DB or *sql.Tx executor, deduplicating by key tuple first.
func (s *Store) upsertEntitiesTx(ctx context.Context, exec sqlExecutor, entities []graphmodel.Entity) (int, error) {
	deduped := dedupeEntities(entities)
	now := formatTime(time.Now())

	stmt := `
INSERT INTO entities (id, name, type, file_path, location, metadata, hash, language, size_bytes, complexity_score, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	type = excluded.type,
	file_path = excluded.file_path,
	location = excluded.location,
	metadata = excluded.metadata,
	hash = COALESCE(NULLIF(excluded.hash, ''), entities.hash),
	language = excluded.language,
	size_bytes = excluded.size_bytes,
	complexity_score = excluded.complexity_score,
	updated_at = CASE
		WHEN excluded.hash IS NOT NULL AND excluded.hash != '' AND excluded.hash != entities.hash
		THEN excluded.updated_at
		ELSE entities.updated_at
	END
`
	for _, e := range deduped {
		if e.ID == "" {
			e.ID = graphmodel.EntityID(e.Key())
		}
		locationJSON, err := marshalJSON(e.Location)
		if err != nil {
			return 0, graphmodel.NewStorageError(err, "marshal location for entity %q", e.ID)
		}
		metadataJSON, err := marshalJSON(e.Metadata)
		if err != nil {
			return 0, graphmodel.NewStorageError(err, "marshal metadata for entity %q", e.ID)
		}
		createdAt := now
		if !e.CreatedAt.IsZero() {
			createdAt = formatTime(e.CreatedAt)
		}
		if _, err := exec.ExecContext(ctx, stmt,
			e.ID, e.Name, e.Type, e.FilePath, locationJSON, metadataJSON, e.Hash, e.Language,
			e.SizeBytes, e.ComplexityScore, createdAt, now,
		); err != nil {
			return 0, graphmodel.NewStorageError(err, "upsert entity %q", e.ID)
		}
		s.invalidateEntityCache(e.ID)
	}
	return len(deduped), nil
}

// dedupeEntities keeps only the last occurrence of each key tuple,
// matching the "local dedup before hitting the store" contract.
func dedupeEntities(entities []graphmodel.Entity) []graphmodel.Entity {
	seen := make(map[graphmodel.EntityKey]int, len(entities))
	out := make([]graphmodel.Entity, 0, len(entities))
	for _, e := range entities {
		key := e.Key()
		if idx, ok := seen[key]; ok {
			out[idx] = e
			continue
		}
		seen[key] = len(out)
		out = append(out, e)
	}
	return out
}

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
