//go:build sqlite_vec && cgo

package vectorindex

import (
	"context"
	"database/sql"
	"fmt"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/storage"
)

func init() {
	// Registers sqlite-vec as an auto-loadable extension for every
	// mattn/go-sqlite3 connection opened afterward, grounded on the
	// source's init_vec.go.
	vec.Auto()
}

// sqliteVecBackend is the ANN-indexed primary backend. It opens its
// own cgo sqlite3 connection against the same database file the
// fallback engine uses, since sqlite-vec's vec0 virtual table requires
// the mattn/go-sqlite3 driver rather than the pure-Go modernc driver
// the rest of the engine runs on.
type sqliteVecBackend struct {
	db         *sql.DB
	dimensions int
	ok         bool
}

func tryNewPrimaryBackend(ctx context.Context, engine *storage.Engine, dimensions int) primaryBackend {
	db, err := sql.Open("sqlite3", engine.Path())
	if err != nil {
		return &sqliteVecBackend{ok: false}
	}
	b := &sqliteVecBackend{db: db, dimensions: dimensions}
	if err := b.ensureSchema(ctx); err != nil {
		db.Close()
		return &sqliteVecBackend{ok: false}
	}
	b.ok = true
	return b
}

func (b *sqliteVecBackend) Available() bool { return b.ok }

func (b *sqliteVecBackend) ensureSchema(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(entity_id TEXT PRIMARY KEY, embedding float[%d])`,
		b.dimensions))
	return err
}

func (b *sqliteVecBackend) Upsert(ctx context.Context, entityID, _ string, vector []float32) error {
	raw, err := vec.SerializeFloat32(vector)
	if err != nil {
		return graphmodel.NewVectorError(err, "serialize vector for entity %q", entityID)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO vec_embeddings(entity_id, embedding) VALUES (?, ?)
		 ON CONFLICT(entity_id) DO UPDATE SET embedding = excluded.embedding`,
		entityID, raw)
	if err != nil {
		return graphmodel.NewVectorError(err, "upsert vector for entity %q", entityID)
	}
	return nil
}

func (b *sqliteVecBackend) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	raw, err := vec.SerializeFloat32(vector)
	if err != nil {
		return nil, graphmodel.NewVectorError(err, "serialize query vector")
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT entity_id, distance FROM vec_embeddings WHERE embedding MATCH ? AND k = ? ORDER BY distance`,
		raw, k)
	if err != nil {
		return nil, graphmodel.NewVectorError(err, "ann search")
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var entityID string
		var distance float64
		if err := rows.Scan(&entityID, &distance); err != nil {
			return nil, graphmodel.NewVectorError(err, "scan ann result")
		}
		matches = append(matches, Match{EntityID: entityID, Score: 1 - distance})
	}
	return matches, rows.Err()
}

func (b *sqliteVecBackend) DeleteByEntity(ctx context.Context, entityID string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE entity_id = ?`, entityID)
	if err != nil {
		return graphmodel.NewVectorError(err, "delete vector for entity %q", entityID)
	}
	return nil
}
