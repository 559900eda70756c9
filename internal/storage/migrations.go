package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// Migration is one ordered, idempotent schema step. SQL is hashed and the
// hash recorded in schema_migrations so a mismatch on a version already
// applied is detected rather than silently re-applied.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered schema history. Append-only: never edit the
// SQL of an already-released version, add a new one instead.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	file_path TEXT NOT NULL,
	location TEXT NOT NULL,
	metadata TEXT,
	hash TEXT,
	language TEXT,
	size_bytes INTEGER DEFAULT 0,
	complexity_score REAL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_file_path ON entities(file_path);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
CREATE INDEX IF NOT EXISTS idx_entities_file_type ON entities(file_path, type);

CREATE TABLE IF NOT EXISTS relationships (
	id TEXT PRIMARY KEY,
	from_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	to_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	metadata TEXT,
	weight REAL DEFAULT 1.0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rel_from ON relationships(from_id);
CREATE INDEX IF NOT EXISTS idx_rel_to ON relationships(to_id);
CREATE INDEX IF NOT EXISTS idx_rel_type ON relationships(type);
CREATE INDEX IF NOT EXISTS idx_rel_from_type ON relationships(from_id, type);

CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	last_indexed TEXT NOT NULL,
	entity_count INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS embeddings (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	content TEXT,
	vector BLOB,
	model_name TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(entity_id, model_name)
);
`,
	},
	{
		Version: 2,
		Name:    "fts_entities",
		SQL: `
CREATE VIRTUAL TABLE IF NOT EXISTS entities_fts USING fts5(
	name, signature, content='entities', content_rowid='rowid'
);
`,
	},
}

// migrate creates schema_migrations and applies any migration whose
// version is not yet recorded, in order, each wrapped in a transaction.
// A checksum mismatch on an already-applied version is a Fatal error:
// the process must not silently continue on a schema it no longer
// recognizes.
func (e *Engine) migrate(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL,
	checksum TEXT NOT NULL
)`); err != nil {
		return graphmodel.NewFatalError(err, "create schema_migrations table")
	}

	applied := map[int]string{}
	rows, err := e.db.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return graphmodel.NewFatalError(err, "read schema_migrations")
	}
	for rows.Next() {
		var v int
		var sum string
		if err := rows.Scan(&v, &sum); err != nil {
			rows.Close()
			return graphmodel.NewFatalError(err, "scan schema_migrations row")
		}
		applied[v] = sum
	}
	rows.Close()

	for _, m := range migrations {
		sum := checksum(m.SQL)
		if prev, ok := applied[m.Version]; ok {
			if prev != sum {
				return graphmodel.NewFatalError(nil,
					"migration %d (%s) checksum mismatch: recorded %s, current %s",
					m.Version, m.Name, prev, sum)
			}
			continue
		}
		if err := e.applyMigration(ctx, m, sum); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyMigration(ctx context.Context, m Migration, sum string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return graphmodel.NewFatalError(err, "begin migration %d", m.Version)
	}
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		tx.Rollback()
		return graphmodel.NewFatalError(err, "apply migration %d (%s)", m.Version, m.Name)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at, checksum) VALUES (?, datetime('now'), ?)`, m.Version, sum); err != nil {
		tx.Rollback()
		return graphmodel.NewFatalError(err, "record migration %d", m.Version)
	}
	if err := tx.Commit(); err != nil {
		return graphmodel.NewFatalError(err, "commit migration %d", m.Version)
	}
	return nil
}

func checksum(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}

// CurrentSchemaVersion returns the highest migration version this build
// knows about.
func CurrentSchemaVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
