// Package toolserver exposes the engine's operations as a stable,
// validated tool-call surface: one typed request/response pair per
// operation, dispatched through a Registry the way the source's JIT
// tool registry dispatched map[string]any calls, generalized here to
// the fixed, typed external interface an MCP server hosts over stdio.
package toolserver

import (
	"context"
	"encoding/json"
)

// ExecuteFunc runs a tool given its raw JSON argument object and
// returns a JSON-marshalable result.
type ExecuteFunc func(ctx context.Context, args json.RawMessage) (any, error)

// ToolDef is one entry in the tool-call surface.
type ToolDef struct {
	// Name is the tool's unique identifier, matching the external
	// interface table (e.g. "list_file_entities").
	Name string

	// Description explains what the tool does; surfaced to MCP clients.
	Description string

	// Execute runs the tool.
	Execute ExecuteFunc
}

// Validate checks that a ToolDef is well-formed before registration.
func (t *ToolDef) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// ToolResult wraps one Execute call with timing metadata, mirroring the
// shape returned to MCP clients as a JSON text payload.
type ToolResult struct {
	ToolName   string `json:"tool_name"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}
