// Package semantic routes entity text through an embedding provider,
// stores the resulting vectors in the Vector Index, and serves semantic
// retrieval (search, clone detection, refactor suggestions) enriched
// with graph context. Grounded on the source's embedding.EmbeddingEngine
// interface and its Ollama/remote-API provider pair, generalized to
// this module's entity/text shape and combined with a hybrid ranking
// step the source did not have.
package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Provider generates dense vector embeddings for text. Implementations
// must be safe for concurrent use.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// HealthChecker is implemented by providers that can verify their
// backend is reachable. The circuit breaker does not call it; it reacts
// only to errors returned by Embed and EmbedBatch.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MemoryProvider derives a deterministic vector from the SHA-256 digest
// of its input text. It needs no network or model and is used both in
// tests and as the circuit breaker's degraded fallback, so that search
// keeps returning consistent (if low-quality) results when the
// configured provider is failing.
type MemoryProvider struct {
	dimensions int
}

// NewMemoryProvider creates a deterministic fallback provider producing
// unit-norm vectors of the given dimensionality (768 if unset, matching
// the common embedding size used elsewhere in this module).
func NewMemoryProvider(dimensions int) *MemoryProvider {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &MemoryProvider{dimensions: dimensions}
}

func (p *MemoryProvider) Name() string    { return "memory" }
func (p *MemoryProvider) Dimensions() int { return p.dimensions }

// Embed hashes text through SHA-256 repeatedly to fill Dimensions()
// float32 components, then L2-normalizes the result so cosine
// similarity behaves sensibly.
func (p *MemoryProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return deterministicVector(text, p.dimensions), nil
}

func (p *MemoryProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, p.dimensions)
	}
	return out, nil
}

func deterministicVector(text string, dimensions int) []float32 {
	vec := make([]float32, dimensions)
	seed := []byte(text)
	block := sha256.Sum256(seed)
	for i := 0; i < dimensions; i++ {
		if i > 0 && i%8 == 0 {
			block = sha256.Sum256(block[:])
		}
		offset := (i % 8) * 4
		bits := binary.BigEndian.Uint32(block[offset : offset+4])
		// Map to [-1, 1] so the vector isn't all-positive.
		vec[i] = float32(bits)/float32(math.MaxUint32)*2 - 1
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return
	}
	norm := math.Sqrt(sumSquares)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
