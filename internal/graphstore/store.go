// Package graphstore implements typed CRUD and query operations over
// entities, relationships, and files atop the Storage Engine, grounded
// on the source's LocalStore knowledge-graph methods (StoreLink,
// QueryLinks, TraversePath) generalized from a single link table into
// the code graph's entities/relationships/files schema.
package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/storage"
)

// entityCacheSize bounds the read-through GetEntity cache. Entities are
// small and GetEntity is the hottest lookup path (query engine subgraph
// expansion, toolserver entity tools), so a modest LRU pays for itself
// without meaningfully growing memory use.
const entityCacheSize = 4096

// Store wraps a storage.Engine with graph-shaped operations. It holds no
// database handle of its own — all writes and reads go through the
// Engine, preserving the single-writer discipline.
type Store struct {
	engine *storage.Engine

	entityCache *lru.Cache
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// New binds a Store to an already-open Engine.
func New(engine *storage.Engine) *Store {
	cache, err := lru.New(entityCacheSize)
	if err != nil {
		// Only fails for a non-positive size, which entityCacheSize never is.
		panic(err)
	}
	return &Store{engine: engine, entityCache: cache}
}

// invalidateEntityCache drops id from the read-through cache after any
// write that may have changed it.
func (s *Store) invalidateEntityCache(id string) {
	s.entityCache.Remove(id)
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON[T any](raw string, out *T) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

// GetEntity fetches a single entity by ID, reading through an in-process
// LRU cache invalidated on every write to that ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*graphmodel.Entity, error) {
	if cached, ok := s.entityCache.Get(id); ok {
		s.cacheHits.Add(1)
		e := cached.(graphmodel.Entity)
		return &e, nil
	}
	s.cacheMisses.Add(1)

	row := s.engine.DB().QueryRowContext(ctx, `
SELECT id, name, type, file_path, location, metadata, hash, language,
       size_bytes, complexity_score, created_at, updated_at
FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, graphmodel.NewNotFoundError("entity %q not found", id)
	}
	if err != nil {
		return nil, graphmodel.NewStorageError(err, "get entity %q", id)
	}
	s.entityCache.Add(id, *e)
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*graphmodel.Entity, error) {
	var e graphmodel.Entity
	var locationJSON, metadataJSON string
	var createdAt, updatedAt string
	if err := row.Scan(&e.ID, &e.Name, &e.Type, &e.FilePath, &locationJSON, &metadataJSON,
		&e.Hash, &e.Language, &e.SizeBytes, &e.ComplexityScore, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(locationJSON, &e.Location); err != nil {
		return nil, err
	}
	if metadataJSON != "" {
		if err := unmarshalJSON(metadataJSON, &e.Metadata); err != nil {
			return nil, err
		}
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// EntityFilter holds the criteria FindEntities matches entities against.
type EntityFilter struct {
	FilePath string
	Type     graphmodel.EntityType
	Name     string
	Limit    int
}

// FindEntities reads entities from the store by file/type/name filter.
func (s *Store) FindEntities(ctx context.Context, filter EntityFilter) ([]graphmodel.Entity, error) {
	query := `SELECT id, name, type, file_path, location, metadata, hash, language,
       size_bytes, complexity_score, created_at, updated_at FROM entities WHERE 1=1`
	var args []any
	if filter.FilePath != "" {
		query += " AND file_path = ?"
		args = append(args, filter.FilePath)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.Name != "" {
		query += " AND name = ?"
		args = append(args, filter.Name)
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.engine.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, graphmodel.NewStorageError(err, "find entities")
	}
	defer rows.Close()

	var out []graphmodel.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, graphmodel.NewStorageError(err, "scan entity row")
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetRelationshipsFor returns relationships touching entityID, optionally
// filtered by type, in either direction.
func (s *Store) GetRelationshipsFor(ctx context.Context, entityID string, relType graphmodel.RelationshipType) ([]graphmodel.Relationship, error) {
	query := `SELECT id, from_id, to_id, type, metadata, weight, created_at FROM relationships
WHERE (from_id = ? OR to_id = ?)`
	args := []any{entityID, entityID}
	if relType != "" {
		query += " AND type = ?"
		args = append(args, relType)
	}
	query += " ORDER BY id"

	rows, err := s.engine.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, graphmodel.NewStorageError(err, "get relationships for %q", entityID)
	}
	defer rows.Close()

	var out []graphmodel.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, graphmodel.NewStorageError(err, "scan relationship row")
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRelationship(row rowScanner) (*graphmodel.Relationship, error) {
	var r graphmodel.Relationship
	var metadataJSON, createdAt string
	if err := row.Scan(&r.ID, &r.FromID, &r.ToID, &r.Type, &metadataJSON, &r.Weight, &createdAt); err != nil {
		return nil, err
	}
	if metadataJSON != "" {
		if err := unmarshalJSON(metadataJSON, &r.Metadata); err != nil {
			return nil, err
		}
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

// GetFileInfo returns the tracking row for path, if any.
func (s *Store) GetFileInfo(ctx context.Context, path string) (*graphmodel.FileInfo, error) {
	row := s.engine.DB().QueryRowContext(ctx, `SELECT path, hash, last_indexed, entity_count FROM files WHERE path = ?`, path)
	var fi graphmodel.FileInfo
	var lastIndexed string
	if err := row.Scan(&fi.Path, &fi.Hash, &lastIndexed, &fi.EntityCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, graphmodel.NewNotFoundError("file %q not tracked", path)
		}
		return nil, graphmodel.NewStorageError(err, "get file info %q", path)
	}
	fi.LastIndexed = parseTime(lastIndexed)
	return &fi, nil
}

// OutdatedFilesSince returns files whose last_indexed is before cutoff.
func (s *Store) OutdatedFilesSince(ctx context.Context, cutoff string) ([]graphmodel.FileInfo, error) {
	rows, err := s.engine.DB().QueryContext(ctx, `SELECT path, hash, last_indexed, entity_count FROM files WHERE last_indexed < ? ORDER BY path`, cutoff)
	if err != nil {
		return nil, graphmodel.NewStorageError(err, "outdated files since %q", cutoff)
	}
	defer rows.Close()

	var out []graphmodel.FileInfo
	for rows.Next() {
		var fi graphmodel.FileInfo
		var lastIndexed string
		if err := rows.Scan(&fi.Path, &fi.Hash, &lastIndexed, &fi.EntityCount); err != nil {
			return nil, graphmodel.NewStorageError(err, "scan file row")
		}
		fi.LastIndexed = parseTime(lastIndexed)
		out = append(out, fi)
	}
	return out, rows.Err()
}

// Stats summarizes database-wide counts for health/observability tools.
type Stats struct {
	EntityCount       int64
	RelationshipCount int64
	FileCount         int64
	EmbeddingCount    int64

	// DatabaseSizeBytes is page_count*page_size for the whole graph.db
	// file (data pages and indexes together; SQLite stores both in one
	// file-backed page pool).
	DatabaseSizeBytes int64
	// IndexSizeBytes is the subset of DatabaseSizeBytes occupied by
	// index b-trees, read from SQLite's dbstat virtual table. Zero when
	// the driver was built without SQLITE_ENABLE_DBSTAT_VTAB rather than
	// failing the whole stats call.
	IndexSizeBytes int64
	// EntityCacheHitRate is GetEntity's read-through LRU hit rate over
	// the process lifetime, in [0, 1]. NaN-free: zero when no lookups
	// have happened yet.
	EntityCacheHitRate float64
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	rows := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM entities", &st.EntityCount},
		{"SELECT COUNT(*) FROM relationships", &st.RelationshipCount},
		{"SELECT COUNT(*) FROM files", &st.FileCount},
		{"SELECT COUNT(*) FROM embeddings", &st.EmbeddingCount},
	}
	for _, r := range rows {
		if err := s.engine.DB().QueryRowContext(ctx, r.query).Scan(r.dest); err != nil {
			return st, graphmodel.NewStorageError(err, "stats query %q", r.query)
		}
	}

	var pageCount, pageSize int64
	if err := s.engine.DB().QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return st, graphmodel.NewStorageError(err, "stats query \"PRAGMA page_count\"")
	}
	if err := s.engine.DB().QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return st, graphmodel.NewStorageError(err, "stats query \"PRAGMA page_size\"")
	}
	st.DatabaseSizeBytes = pageCount * pageSize

	if err := s.engine.DB().QueryRowContext(ctx,
		`SELECT COALESCE(SUM(pgsize), 0) FROM dbstat WHERE name IN (SELECT name FROM sqlite_master WHERE type = 'index')`,
	).Scan(&st.IndexSizeBytes); err != nil {
		logging.Get(logging.CategoryGraphStore).Warn("index size unavailable (dbstat vtab not compiled in): %v", err)
		st.IndexSizeBytes = 0
	}

	hits, misses := s.cacheHits.Load(), s.cacheMisses.Load()
	if total := hits + misses; total > 0 {
		st.EntityCacheHitRate = float64(hits) / float64(total)
	}

	return st, nil
}

// ResetAll deletes every entity, relationship, and file tracking row,
// leaving the schema intact. Used by the reset_graph/clean_index tool
// operation; the Vector Index's embeddings table is cleared separately
// by the caller since the Store holds no reference to it.
func (s *Store) ResetAll(ctx context.Context) error {
	err := s.engine.Transaction(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"relationships", "entities", "files"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return graphmodel.NewStorageError(err, "reset table %q", table)
			}
		}
		return nil
	})
	if err == nil {
		s.entityCache.Purge()
	}
	return err
}

// Vacuum and Analyze run periodic SQLite maintenance.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.engine.DB().ExecContext(ctx, "VACUUM")
	if err != nil {
		return graphmodel.NewStorageError(err, "vacuum")
	}
	return nil
}

func (s *Store) Analyze(ctx context.Context) error {
	_, err := s.engine.DB().ExecContext(ctx, "ANALYZE")
	if err != nil {
		return graphmodel.NewStorageError(err, "analyze")
	}
	return nil
}

func logTimer(op string) func() {
	t := logging.StartTimer(logging.CategoryGraphStore, op)
	return func() { t.Stop() }
}
