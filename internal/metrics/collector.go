package metrics

import (
	"context"
	"time"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/coordinator"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphstore"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/vectorindex"
)

// Collector periodically samples the Graph Store, Vector Index, and
// Agent Coordinator into the package's gauges, the way the source's
// Collector ticks over its manager to refresh cluster gauges.
type Collector struct {
	store       *graphstore.Store
	vector      *vectorindex.Index
	coordinator *coordinator.Coordinator
	interval    time.Duration
	stopCh      chan struct{}
}

// NewCollector builds a Collector. interval defaults to 15s if <= 0.
func NewCollector(store *graphstore.Store, vector *vectorindex.Index, c *coordinator.Coordinator, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{store: store, vector: vector, coordinator: c, interval: interval, stopCh: make(chan struct{})}
}

// Start begins sampling in the background, collecting once immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts sampling. Safe to call once.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if stats, err := c.store.Stats(ctx); err == nil {
		EntitiesTotal.Set(float64(stats.EntityCount))
		RelationshipsTotal.Set(float64(stats.RelationshipCount))
		FilesTotal.Set(float64(stats.FileCount))
		EmbeddingsTotal.Set(float64(stats.EmbeddingCount))
		DatabaseSizeBytes.Set(float64(stats.DatabaseSizeBytes))
		IndexSizeBytes.Set(float64(stats.IndexSizeBytes))
		EntityCacheHitRate.Set(stats.EntityCacheHitRate)
	}

	if c.vector != nil {
		if vs, err := c.vector.Stats(ctx); err == nil {
			EmbeddingsTotal.Set(float64(vs.VectorCount))
			VectorSearchAvgLatencySeconds.Set(vs.AvgSearchLatencyMs / 1000)
		}
	}

	for agentType, m := range c.coordinator.GetMetrics() {
		label := string(agentType)
		AgentPoolCapacity.WithLabelValues(label).Set(float64(m.PoolCapacity))
		AgentPoolAvailable.WithLabelValues(label).Set(float64(m.PoolAvailable))
		AgentTasksTotal.WithLabelValues(label, "completed").Set(float64(m.TasksCompleted))
		AgentTasksTotal.WithLabelValues(label, "failed").Set(float64(m.TasksFailed))
		AgentTaskAvgDurationSeconds.WithLabelValues(label).Set(m.AvgDuration.Seconds())
	}
}
