package semantic

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
)

// FailureThreshold is the number of consecutive failures that trips the
// breaker, short-circuiting further calls to the degraded fallback.
const FailureThreshold = 5

// circuitBreaker wraps a Provider, routing to a deterministic fallback
// after FailureThreshold consecutive failures within the cool-down
// schedule below. The cool-down itself uses backoff/v5's exponential
// schedule (the same package the Graph Store's batch writer uses for
// per-chunk retries) purely as a timer source, not for retrying calls.
type circuitBreaker struct {
	mu          sync.Mutex
	primary     Provider
	fallback    Provider
	consecutive int
	open        bool
	reopenAt    time.Time
	cooldown    backoff.BackOff
}

// newCircuitBreaker wraps primary; fallback is used both while the
// breaker is open and whenever primary itself returns an error.
func newCircuitBreaker(primary, fallback Provider) *circuitBreaker {
	return &circuitBreaker{
		primary:  primary,
		fallback: fallback,
		cooldown: backoff.NewExponentialBackOff(),
	}
}

func (b *circuitBreaker) Name() string    { return b.primary.Name() }
func (b *circuitBreaker) Dimensions() int { return b.fallback.Dimensions() }

func (b *circuitBreaker) tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return false
	}
	if time.Now().After(b.reopenAt) {
		b.open = false
		b.consecutive = 0
		return false
	}
	return true
}

func (b *circuitBreaker) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.consecutive = 0
		b.open = false
		return
	}
	b.consecutive++
	if b.consecutive >= FailureThreshold && !b.open {
		b.open = true
		next := b.cooldown.NextBackOff()
		if next == backoff.Stop {
			next = 30 * time.Second
		}
		b.reopenAt = time.Now().Add(next)
		logging.Get(logging.CategorySemantic).Warn(
			"embedding provider %s tripped circuit breaker after %d consecutive failures, cooling down %s",
			b.primary.Name(), b.consecutive, next)
	}
}

func (b *circuitBreaker) Embed(ctx context.Context, text string) ([]float32, error) {
	if b.tripped() {
		return b.fallback.Embed(ctx, text)
	}
	vec, err := b.primary.Embed(ctx, text)
	b.recordResult(err)
	if err != nil {
		return b.fallback.Embed(ctx, text)
	}
	return vec, nil
}

func (b *circuitBreaker) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if b.tripped() {
		return b.fallback.EmbedBatch(ctx, texts)
	}
	vecs, err := b.primary.EmbedBatch(ctx, texts)
	b.recordResult(err)
	if err != nil {
		return b.fallback.EmbedBatch(ctx, texts)
	}
	return vecs, nil
}
