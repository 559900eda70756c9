package vectorindex

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
)

// fallbackUpsert stores vector as a float32 BLOB in the embeddings
// table, the cgo-free path every build supports.
func (idx *Index) fallbackUpsert(ctx context.Context, entityID, model, content string, vector []float32) error {
	blob := encodeVector(vector)
	id := graphmodel.ContentHash([]byte(entityID + "|" + model))
	_, err := idx.engine.DB().ExecContext(ctx, `
INSERT INTO embeddings (id, entity_id, content, vector, model_name, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET content = excluded.content, vector = excluded.vector, created_at = excluded.created_at
`, id, entityID, content, blob, model, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return graphmodel.NewStorageError(err, "upsert embedding for entity %q", entityID)
	}
	idx.cache.Purge()
	return nil
}

// fallbackSearch linear-scans every stored vector and ranks by cosine
// similarity. This is the only backend guaranteed to be compiled in;
// it favors correctness and simplicity over asymptotic performance,
// matching the fallback's stated role as a small-corpus safety net.
func (idx *Index) fallbackSearch(ctx context.Context, query []float32, k int) ([]Match, error) {
	rows, err := idx.engine.DB().QueryContext(ctx, `SELECT entity_id, vector FROM embeddings`)
	if err != nil {
		return nil, graphmodel.NewStorageError(err, "scan embeddings")
	}
	defer rows.Close()

	matches := make([]Match, 0, k)
	for rows.Next() {
		var entityID string
		var blob []byte
		if err := rows.Scan(&entityID, &blob); err != nil {
			return nil, graphmodel.NewStorageError(err, "scan embedding row")
		}
		vec, err := decodeVector(blob)
		if err != nil {
			continue // skip corrupt rows rather than fail the whole search
		}
		score, err := cosineSimilarity(query, vec)
		if err != nil {
			continue // dimension drift from a stale row; skip
		}
		matches = append(matches, Match{EntityID: entityID, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, graphmodel.NewStorageError(err, "iterate embeddings")
	}

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, errors.New("vector blob length not a multiple of 4")
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}

// cosineSimilarity grounds its formula on the source's vecDistanceCos:
// dot(a,b) / (||a|| * ||b||). Zero-magnitude vectors score zero rather
// than dividing by zero.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, graphmodel.DimensionMismatch(len(b), len(a))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// vectorCacheKey builds a stable string key for the LRU query-vector
// cache. Vectors are quantized to 4 decimal digits so near-identical
// floating point results from repeated embedding calls still hit.
func vectorCacheKey(v []float32, k int) (string, bool) {
	if len(v) == 0 || len(v) > 4096 {
		return "", false
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(k))
	b.WriteByte('|')
	for _, f := range v {
		b.WriteString(strconv.FormatFloat(math.Round(float64(f)*1e4)/1e4, 'f', 4, 64))
		b.WriteByte(',')
	}
	return b.String(), true
}
