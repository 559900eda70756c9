package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/metrics"
)

// Registry holds every registered tool and dispatches calls by name.
// Thread-safe; tools are expected to be registered once at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*ToolDef
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*ToolDef)}
}

// Register adds a tool. Returns an error if the definition is invalid or
// a tool with the same name already exists.
func (r *Registry) Register(tool *ToolDef) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// MustRegister registers a tool and panics on error; used for static
// registration at startup in NewEngineRegistry.
func (r *Registry) MustRegister(tool *ToolDef) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("toolserver: failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not registered.
func (r *Registry) Get(name string) *ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs the named tool with args and returns its result wrapped
// with timing metadata. Errors are surfaced both as a Go error and, for
// MCP client consumption, as the ToolResult's Error field.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	start := time.Now()
	logging.Get(logging.CategoryTools).Debug("executing tool %s", name)
	value, err := tool.Execute(ctx, args)
	duration := time.Since(start)
	logging.Get(logging.CategoryTools).Debug("tool %s completed in %v (success=%v)", name, duration, err == nil)
	metrics.RecordToolCall(name, err, duration)

	result := &ToolResult{ToolName: name, DurationMs: duration.Milliseconds()}
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.Result = value
	return result, nil
}
