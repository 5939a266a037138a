package tool

import "errors"

// Registry and execution failures. The agent turns them into error
// outputs so the model can correct itself.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrEmptyToolName    = errors.New("tool name must not be empty")
	ErrDuplicateTool    = errors.New("tool already registered")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrTimeout          = errors.New("tool execution timed out")
)
