package toolserver

import "errors"

// Tool registry errors.
var (
	// ErrToolNotFound is returned when a tool name has no registered handler.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool is registered without a name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no Execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolAlreadyRegistered is returned when registering a duplicate name.
	ErrToolAlreadyRegistered = errors.New("tool already registered")
)
