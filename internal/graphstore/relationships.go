package graphstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// upsertRelationshipsTx inserts relationships, deduped by (from,to,type),
// first creating a placeholder `external` entity for any endpoint that
// doesn't exist yet so the foreign key never breaks.
func (s *Store) upsertRelationshipsTx(ctx context.Context, exec sqlExecutor, rels []graphmodel.Relationship) (int, error) {
	deduped := dedupeRelationships(rels)
	if len(deduped) == 0 {
		return 0, nil
	}

	if err := s.ensurePlaceholders(ctx, exec, deduped); err != nil {
		return 0, err
	}

	now := formatTime(time.Now())
	stmt := `
INSERT INTO relationships (id, from_id, to_id, type, metadata, weight, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	metadata = excluded.metadata,
	weight = excluded.weight
`
	for _, r := range deduped {
		if r.ID == "" {
			r.ID = graphmodel.RelationshipID(r.Key())
		}
		metadataJSON, err := marshalJSON(r.Metadata)
		if err != nil {
			return 0, graphmodel.NewStorageError(err, "marshal metadata for relationship %q", r.ID)
		}
		weight := r.Weight
		if weight == 0 {
			weight = 1.0
		}
		if _, err := exec.ExecContext(ctx, stmt, r.ID, r.FromID, r.ToID, r.Type, metadataJSON, weight, now); err != nil {
			return 0, graphmodel.NewStorageError(err, "upsert relationship %q", r.ID)
		}
	}
	return len(deduped), nil
}

func dedupeRelationships(rels []graphmodel.Relationship) []graphmodel.Relationship {
	seen := make(map[graphmodel.RelationshipKey]int, len(rels))
	out := make([]graphmodel.Relationship, 0, len(rels))
	for _, r := range rels {
		key := r.Key()
		if idx, ok := seen[key]; ok {
			out[idx] = r
			continue
		}
		seen[key] = len(out)
		out = append(out, r)
	}
	return out
}

// ensurePlaceholders inserts a placeholder `external` entity for any
// from_id/to_id referenced by rels that isn't already present.
func (s *Store) ensurePlaceholders(ctx context.Context, exec sqlExecutor, rels []graphmodel.Relationship) error {
	ids := make(map[string]struct{})
	for _, r := range rels {
		ids[r.FromID] = struct{}{}
		ids[r.ToID] = struct{}{}
	}
	if len(ids) == 0 {
		return nil
	}

	missing := make([]string, 0, len(ids))
	for id := range ids {
		var exists int
		if err := exec.QueryRowContext(ctx, "SELECT 1 FROM entities WHERE id = ?", id).Scan(&exists); err != nil {
			if err == sql.ErrNoRows {
				missing = append(missing, id)
				continue
			}
			return graphmodel.NewStorageError(err, "check entity existence %q", id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	now := formatTime(time.Now())
	for _, id := range missing {
		locationJSON, _ := marshalJSON(graphmodel.Location{})
		if _, err := exec.ExecContext(ctx, `
INSERT INTO entities (id, name, type, file_path, location, metadata, hash, language, size_bytes, complexity_score, created_at, updated_at)
VALUES (?, ?, ?, '', ?, '', '', '', 0, 0, ?, ?)
ON CONFLICT(id) DO NOTHING
`, id, "external:"+id, graphmodel.EntityExternal, locationJSON, now, now); err != nil {
			return graphmodel.NewStorageError(err, "insert placeholder entity %q", id)
		}
	}
	return nil
}

// DeleteEntitiesByFile removes every entity (and, via cascade,
// relationship) rooted at path. Relationships are deleted first so the
// operation stays atomic even without relying solely on the FK cascade.
func (s *Store) DeleteEntitiesByFile(ctx context.Context, path string) error {
	err := s.engine.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM relationships WHERE from_id IN (SELECT id FROM entities WHERE file_path = ?)
   OR to_id IN (SELECT id FROM entities WHERE file_path = ?)`, path, path); err != nil {
			return graphmodel.NewStorageError(err, "delete relationships for file %q", path)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE file_path = ?`, path); err != nil {
			return graphmodel.NewStorageError(err, "delete entities for file %q", path)
		}
		return nil
	})
	if err == nil {
		// Deleted IDs aren't known without a prior read, so drop the
		// whole cache rather than leave stale entries from path behind.
		s.entityCache.Purge()
	}
	return err
}
