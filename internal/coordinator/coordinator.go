// Package coordinator schedules work units across agent-type worker pools
// under bounded resources: a single priority queue feeds per-type pools,
// a resource monitor shrinks and regrows pools against memory watermarks,
// and a stuck-task watchdog interrupts tasks that run longer than the
// stuck-task threshold.
package coordinator

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/config"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
)

// AgentType identifies a worker pool. Tasks are routed to exactly one
// AgentType by TaskKind; pool instances are reused across tasks, never
// spawned per task.
type AgentType string

const (
	AgentParser   AgentType = "parser"
	AgentIndexer  AgentType = "indexer"
	AgentQuery    AgentType = "query"
	AgentSemantic AgentType = "semantic"
	AgentDev      AgentType = "dev"
	AgentResearch AgentType = "research"
)

// TaskKind names the kind of work a Task performs. The conductor policy
// maps each kind onto exactly one AgentType.
type TaskKind string

const (
	KindParseFile      TaskKind = "parse_file"
	KindIndexFile      TaskKind = "index_file"
	KindIndexDirectory TaskKind = "index_directory"
	KindQuery          TaskKind = "query"
	KindSemanticSearch TaskKind = "semantic_search"
	KindEmbedEntity    TaskKind = "embed_entity"
	KindDevTask        TaskKind = "dev_task"
	KindResearchTask   TaskKind = "research_task"
)

// conductorTable is the mandatory routing policy from task kind to agent
// type. It is the single place a new task kind must be registered.
var conductorTable = map[TaskKind]AgentType{
	KindParseFile:      AgentParser,
	KindIndexFile:      AgentIndexer,
	KindIndexDirectory: AgentIndexer,
	KindQuery:          AgentQuery,
	KindSemanticSearch: AgentSemantic,
	KindEmbedEntity:    AgentSemantic,
	KindDevTask:        AgentDev,
	KindResearchTask:   AgentResearch,
}

// route resolves the agent type responsible for kind. Unknown kinds route
// to AgentDev so unexpected task kinds still make progress instead of
// silently vanishing.
func route(kind TaskKind) AgentType {
	if t, ok := conductorTable[kind]; ok {
		return t
	}
	return AgentDev
}

// AgentState is a node in the {Idle -> Working -> Idle} / {Idle -> Working
// -> Error -> Idle} state machine a task instance moves through.
type AgentState string

const (
	StateIdle    AgentState = "idle"
	StateWorking AgentState = "working"
	StateError   AgentState = "error"
)

// Fn is the unit of work a Task executes. It must observe ctx for
// cancellation at every suspension point.
type Fn func(ctx context.Context) (any, error)

// Task is a single work unit submitted to the coordinator.
type Task struct {
	ID        string
	Kind      TaskKind
	Type      AgentType
	Priority  int
	CreatedAt time.Time
	Deadline  time.Duration

	Run Fn

	index   int
	resultC chan Result
}

// Result is delivered to the submitter once a Task finishes or is
// rejected.
type Result struct {
	TaskID string
	Value  any
	Err    error
}

type inFlightTask struct {
	task      *Task
	cancel    context.CancelFunc
	startedAt time.Time
	promoted  bool
	state     AgentState
}

type agentMetrics struct {
	mu             sync.Mutex
	completed      int64
	failed         int64
	totalDuration  time.Duration
	currentMemMB   int64
}

func (m *agentMetrics) record(err error, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed++
	} else {
		m.completed++
	}
	m.totalDuration += d
}

// AgentMetrics is a point-in-time snapshot of one agent pool's
// observability counters, returned by GetMetrics.
type AgentMetrics struct {
	TasksCompleted int64
	TasksFailed    int64
	SuccessRate    float64
	AvgDuration    time.Duration
	QueueDepth     int
	PoolCapacity   int64
	PoolAvailable  int64
}

// Coordinator schedules Tasks across per-AgentType worker pools.
type Coordinator struct {
	cfg config.CoordinatorConfig

	mu    sync.Mutex
	queue taskHeap

	pools   map[AgentType]*pool
	metrics map[AgentType]*agentMetrics

	inFlight map[string]*inFlightTask

	degraded bool

	closing chan struct{}
	wg      sync.WaitGroup
}

// pool wraps a semaphore.Weighted sized to an agent type's configured
// concurrency. Elastic resizing (shrinkTo/growTo) withholds permits in a
// reserved pool rather than recreating the semaphore, since
// golang.org/x/sync/semaphore has no native resize operation.
type pool struct {
	mu       sync.Mutex
	sem      *semaphore.Weighted
	max      int64
	reserved int64
}

func newPool(max int) *pool {
	if max < 1 {
		max = 1
	}
	return &pool{sem: semaphore.NewWeighted(int64(max)), max: int64(max)}
}

func (p *pool) available() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max - p.reserved
}

// shrinkTo reduces capacity to n by acquiring the difference as a
// best-effort reservation; slots currently in use are not preempted, so
// shrinkTo may take several calls to fully take effect as tasks finish.
func (p *pool) shrinkTo(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 {
		n = 0
	}
	want := p.max - n
	if want <= p.reserved {
		return
	}
	delta := want - p.reserved
	if p.sem.TryAcquire(delta) {
		p.reserved += delta
	}
}

// growTo raises capacity back toward n (capped at max).
func (p *pool) growTo(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.max {
		n = p.max
	}
	want := p.max - n
	if want >= p.reserved {
		return
	}
	delta := p.reserved - want
	p.sem.Release(delta)
	p.reserved -= delta
}

// New constructs a Coordinator from cfg and starts its resource monitor
// and stuck-task watchdog. Call Close to stop both and drain in-flight
// tasks.
func New(cfg config.CoordinatorConfig) *Coordinator {
	c := &Coordinator{
		cfg: cfg,
		pools: map[AgentType]*pool{
			AgentParser:   newPool(cfg.ParserConcurrency),
			AgentIndexer:  newPool(cfg.IndexerConcurrency),
			AgentQuery:    newPool(cfg.QueryConcurrency),
			AgentSemantic: newPool(cfg.SemanticConcurrency),
			// spec.md names defaults only for parser/indexer/query/semantic;
			// dev and research get a conservative fixed pool since no
			// config field exists for them.
			AgentDev:      newPool(2),
			AgentResearch: newPool(2),
		},
		metrics:  make(map[AgentType]*agentMetrics),
		inFlight: make(map[string]*inFlightTask),
		closing:  make(chan struct{}),
	}
	for t := range c.pools {
		c.metrics[t] = &agentMetrics{}
	}

	c.wg.Add(2)
	go c.runResourceMonitor()
	go c.runWatchdog()
	return c
}

// Submit enqueues t and returns a channel that receives its Result.
// Submissions beyond the configured queue cap are rejected with a
// BackpressureError.
func (c *Coordinator) Submit(t *Task) (<-chan Result, error) {
	if t.Run == nil {
		return nil, graphmodel.NewInputError("task %s has no Run function", t.ID)
	}
	t.Type = route(t.Kind)
	t.CreatedAt = time.Now()
	t.resultC = make(chan Result, 1)
	if t.Deadline <= 0 {
		t.Deadline = c.cfg.TaskDeadline
	}

	c.mu.Lock()
	if c.queue.Len() >= c.cfg.QueueCap {
		c.mu.Unlock()
		return nil, graphmodel.NewBackpressureError("coordinator queue at capacity (%d)", c.cfg.QueueCap)
	}
	heap.Push(&c.queue, t)
	c.dispatchLocked()
	c.mu.Unlock()
	return t.resultC, nil
}

// dispatchLocked drains the queue in priority order, starting every task
// whose agent pool currently has capacity and re-queuing the rest. Must
// be called with c.mu held.
func (c *Coordinator) dispatchLocked() {
	var deferred []*Task
	for c.queue.Len() > 0 {
		t := heap.Pop(&c.queue).(*Task)
		p := c.pools[t.Type]
		if p.sem.TryAcquire(1) {
			c.startTask(t)
		} else {
			deferred = append(deferred, t)
		}
	}
	for _, t := range deferred {
		heap.Push(&c.queue, t)
	}
}

func (c *Coordinator) startTask(t *Task) {
	ctx, cancel := context.WithTimeout(context.Background(), t.Deadline)
	c.inFlight[t.ID] = &inFlightTask{task: t, cancel: cancel, startedAt: time.Now(), state: StateWorking}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		timer := logging.StartTimer(logging.CategoryCoordinator, string(t.Kind))
		start := time.Now()

		value, err := t.Run(ctx)
		cancel()
		timer.Stop()

		c.metrics[t.Type].record(err, time.Since(start))

		c.mu.Lock()
		if inf, ok := c.inFlight[t.ID]; ok {
			if err != nil {
				inf.state = StateError
			} else {
				inf.state = StateIdle
			}
		}
		delete(c.inFlight, t.ID)
		c.pools[t.Type].sem.Release(1)
		c.dispatchLocked()
		c.mu.Unlock()

		t.resultC <- Result{TaskID: t.ID, Value: value, Err: err}
		close(t.resultC)
	}()
}

// TaskState reports a queued or running task's current position in the
// {Idle -> Working -> Idle} / {Idle -> Working -> Error -> Idle} state
// machine. Tasks not found in either the queue or the in-flight set have
// already completed and returned their Result.
func (c *Coordinator) TaskState(id string) AgentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inf, ok := c.inFlight[id]; ok {
		return inf.state
	}
	for _, t := range c.queue {
		if t.ID == id {
			return StateIdle
		}
	}
	return StateIdle
}

// ResizePool grows an agent type's worker pool toward n, capped at the
// pool's configured maximum. Used alongside size-adaptive indexing: once
// the Indexer detects a large repository, the caller grows the indexer
// pool toward its configured ceiling so the extra batch-size headroom
// has matching concurrency to run with. For n > 0 it only releases
// withheld permits and never shrinks the pool; n <= 0 shrinks the pool
// to 0, mirroring the resource monitor's degrade path.
func (c *Coordinator) ResizePool(t AgentType, n int) {
	c.mu.Lock()
	p, ok := c.pools[t]
	c.mu.Unlock()
	if !ok {
		return
	}
	if n <= 0 {
		p.shrinkTo(0)
		return
	}
	p.growTo(int64(n))
}

// PoolMax returns an agent type's configured pool ceiling, the value
// ResizePool caps growTo against. Zero if t is unknown.
func (c *Coordinator) PoolMax(t AgentType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[t]
	if !ok {
		return 0
	}
	return int(p.max)
}

// GetMetrics returns a point-in-time snapshot of every agent pool's
// observability counters, the shape the get_metrics tool surfaces.
func (c *Coordinator) GetMetrics() map[AgentType]AgentMetrics {
	c.mu.Lock()
	depth := make(map[AgentType]int)
	for _, t := range c.queue {
		depth[t.Type]++
	}
	c.mu.Unlock()

	out := make(map[AgentType]AgentMetrics, len(c.metrics))
	for agentType, m := range c.metrics {
		m.mu.Lock()
		total := m.completed + m.failed
		var rate float64
		var avg time.Duration
		if total > 0 {
			rate = float64(m.completed) / float64(total)
			avg = m.totalDuration / time.Duration(total)
		}
		p := c.pools[agentType]
		out[agentType] = AgentMetrics{
			TasksCompleted: m.completed,
			TasksFailed:    m.failed,
			SuccessRate:    rate,
			AvgDuration:    avg,
			QueueDepth:     depth[agentType],
			PoolCapacity:   p.max,
			PoolAvailable:  p.available(),
		}
		m.mu.Unlock()
	}
	return out
}

// runResourceMonitor samples process memory at cfg.ResourceSampleInterval
// and halves the parser pool plus pauses the semantic/dev/research pools
// once usage crosses HighWatermarkMB, growing them back once usage falls
// back below LowWatermarkMB. Sampling uses runtime.MemStats; no gopsutil
// equivalent appears anywhere in the retrieval pack, so this stays on the
// standard library rather than introducing a CPU/memory-sampling
// dependency with no grounding source.
func (c *Coordinator) runResourceMonitor() {
	defer c.wg.Done()
	interval := c.cfg.ResourceSampleInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closing:
			return
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			memMB := int64(ms.Alloc / (1024 * 1024))

			c.mu.Lock()
			for _, m := range c.metrics {
				m.mu.Lock()
				m.currentMemMB = memMB
				m.mu.Unlock()
			}
			high := c.cfg.HighWatermarkMB
			low := c.cfg.LowWatermarkMB
			switch {
			case high > 0 && memMB >= int64(high) && !c.degraded:
				c.degraded = true
				c.pools[AgentParser].shrinkTo(int64(c.cfg.ParserConcurrency) / 2)
				c.pools[AgentSemantic].shrinkTo(0)
				c.pools[AgentDev].shrinkTo(0)
				c.pools[AgentResearch].shrinkTo(0)
				logging.Get(logging.CategoryCoordinator).Warn(
					"memory %dMB crossed high watermark %dMB, shrinking parser pool and pausing non-critical pools", memMB, high)
			case low > 0 && memMB <= int64(low) && c.degraded:
				c.degraded = false
				c.pools[AgentParser].growTo(int64(c.cfg.ParserConcurrency))
				c.pools[AgentSemantic].growTo(int64(c.cfg.SemanticConcurrency))
				c.pools[AgentDev].growTo(2)
				c.pools[AgentResearch].growTo(2)
				c.dispatchLocked()
				logging.Get(logging.CategoryCoordinator).Info(
					"memory %dMB fell below low watermark %dMB, restoring pool capacity", memMB, low)
			}
			c.mu.Unlock()
		}
	}
}

// runWatchdog promotes Working tasks exceeding StuckTaskThreshold into an
// incident by cancelling their context; the running Run function is
// expected to observe ctx.Done() at its next suspension point.
func (c *Coordinator) runWatchdog() {
	defer c.wg.Done()
	interval := c.cfg.WatchdogInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	threshold := c.cfg.StuckTaskThreshold
	if threshold <= 0 {
		threshold = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closing:
			return
		case <-ticker.C:
			c.mu.Lock()
			for _, inf := range c.inFlight {
				if inf.promoted {
					continue
				}
				if time.Since(inf.startedAt) > threshold {
					inf.promoted = true
					logging.Get(logging.CategoryCoordinator).Error(
						"task %s (%s) exceeded stuck-task threshold %s, cancelling", inf.task.ID, inf.task.Kind, threshold)
					inf.cancel()
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the resource monitor and watchdog and waits for every
// in-flight task to finish.
func (c *Coordinator) Close() error {
	close(c.closing)
	c.wg.Wait()
	return nil
}
