// Package metrics exposes the engine's Prometheus collectors and a
// periodic Collector that samples the Graph Store, Vector Index, and
// Agent Coordinator, grounded on the source's pkg/metrics package
// (package-level collectors registered at init, a Timer helper for
// histogram observations, and a ticking Collector), generalized from
// cluster/node/raft gauges to graph-engine ones.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Graph Store gauges.
	EntitiesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "codegraph_entities_total",
		Help: "Total number of entities in the graph store.",
	})

	RelationshipsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "codegraph_relationships_total",
		Help: "Total number of relationships in the graph store.",
	})

	FilesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "codegraph_files_total",
		Help: "Total number of files tracked by the indexer.",
	})

	EmbeddingsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "codegraph_embeddings_total",
		Help: "Total number of vectors stored in the vector index.",
	})

	DatabaseSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "codegraph_database_size_bytes",
		Help: "Graph store database file size (page_count*page_size), in bytes.",
	})

	IndexSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "codegraph_index_size_bytes",
		Help: "Graph store b-tree index size, in bytes. Zero if dbstat is unavailable.",
	})

	EntityCacheHitRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "codegraph_entity_cache_hit_rate",
		Help: "GetEntity read-through cache hit rate over the process lifetime, in [0,1].",
	})

	VectorSearchAvgLatencySeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "codegraph_vector_search_avg_latency_seconds",
		Help: "Mean Search call duration over the process lifetime, in seconds.",
	})

	// Indexing metrics.
	IndexDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "codegraph_index_duration_seconds",
		Help:    "Time taken for an IndexDirectory run, in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	FilesIndexedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "codegraph_files_indexed_total",
		Help: "Total number of files successfully indexed.",
	})

	IndexErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "codegraph_index_errors_total",
		Help: "Total number of per-file errors encountered while indexing.",
	})

	// Agent Coordinator gauges/counters, labeled by agent type.
	AgentPoolCapacity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "codegraph_agent_pool_capacity",
		Help: "Configured worker-pool capacity per agent type.",
	}, []string{"agent_type"})

	AgentPoolAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "codegraph_agent_pool_available",
		Help: "Currently available worker-pool permits per agent type.",
	}, []string{"agent_type"})

	// AgentTasksTotal mirrors the Coordinator's cumulative per-agent
	// counters directly (a Gauge, not a Counter: GetMetrics already
	// returns running totals, so incrementing a Counter from each
	// sample would double-count).
	AgentTasksTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "codegraph_agent_tasks_total",
		Help: "Cumulative tasks per agent type, by outcome.",
	}, []string{"agent_type", "outcome"})

	AgentTaskAvgDurationSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "codegraph_agent_task_avg_duration_seconds",
		Help: "Average task duration per agent type, in seconds.",
	}, []string{"agent_type"})

	ResourceMemMB = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "codegraph_resource_mem_mb",
		Help: "Sampled process heap allocation, in megabytes.",
	})

	// Tool-call metrics, labeled by tool name.
	ToolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codegraph_tool_calls_total",
		Help: "Total tool invocations, by tool name and outcome.",
	}, []string{"tool", "outcome"})

	ToolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codegraph_tool_call_duration_seconds",
		Help:    "Tool call duration, by tool name, in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})
)

func init() {
	prometheus.MustRegister(
		EntitiesTotal, RelationshipsTotal, FilesTotal, EmbeddingsTotal,
		DatabaseSizeBytes, IndexSizeBytes, EntityCacheHitRate, VectorSearchAvgLatencySeconds,
		IndexDuration, FilesIndexedTotal, IndexErrorsTotal,
		AgentPoolCapacity, AgentPoolAvailable, AgentTasksTotal, AgentTaskAvgDurationSeconds,
		ResourceMemMB,
		ToolCallsTotal, ToolCallDuration,
	)
}

// Handler serves the Prometheus exposition format over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration for later histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time on histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time on a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration reports the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// RecordToolCall is called by the Tool Server's Registry after every
// Execute, updating both the call counter and the duration histogram.
func RecordToolCall(tool string, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}
