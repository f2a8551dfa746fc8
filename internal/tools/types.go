// Package tools provides the permission-aware tool system for stitch: a
// registry of validated, schema-checked executors plus the approval and
// output-bounding policy that gates what an agent may do to the machine.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Category classifies tools for output bounding and default permissions.
type Category string

const (
	CategoryRead    Category = "read"
	CategoryEdit    Category = "edit"
	CategorySearch  Category = "search"
	CategoryExecute Category = "execute"
)

// ApprovalType controls whether a tool invocation needs user confirmation.
type ApprovalType string

const (
	ApprovalNone      ApprovalType = "none"       // Never prompts
	ApprovalAsk       ApprovalType = "ask"        // Prompts unless already approved
	ApprovalAlwaysAsk ApprovalType = "always_ask" // Prompts on every invocation
)

// ConfirmOutcome represents the result of a user confirmation prompt.
type ConfirmOutcome string

const (
	ProceedOnce          ConfirmOutcome = "once"        // Single approval
	ProceedAlways        ConfirmOutcome = "always"      // Session-scoped approval
	ProceedAlwaysAndSave ConfirmOutcome = "always_save" // Persist to project approvals
	Cancel               ConfirmOutcome = "cancel"      // User denied
)

// ToolErrorType provides structured errors for agent retry logic.
type ToolErrorType string

const (
	ErrFileNotFound     ToolErrorType = "FILE_NOT_FOUND"
	ErrInvalidParams    ToolErrorType = "INVALID_PARAMS"
	ErrExecutionFailed  ToolErrorType = "EXECUTION_FAILED"
	ErrPermissionDenied ToolErrorType = "PERMISSION_DENIED"
	ErrBinaryFile       ToolErrorType = "BINARY_FILE"
	ErrFileTooLarge     ToolErrorType = "FILE_TOO_LARGE"
	ErrTimeout          ToolErrorType = "TIMEOUT"
)

// ToolError provides structured error information for retry logic.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewToolError creates a new ToolError.
func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

// NewToolErrorf creates a new ToolError with formatted message.
func NewToolErrorf(errType ToolErrorType, format string, args ...interface{}) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// ExecutionResult is the outcome of a registry execution. Failures are
// carried in Error with Success=false; they are never raised as panics
// or returned as Go errors across the registry boundary.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Executor performs a tool invocation. Arguments arrive as raw JSON that
// has already passed schema validation; executors unmarshal into their own
// typed argument structs.
type Executor interface {
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return f(ctx, args)
}

// Tool names
const (
	ReadFileToolName  = "read_file"
	WriteFileToolName = "write_file"
	EditFileToolName  = "edit_file"
	ShellToolName     = "shell"
	GrepToolName      = "grep"
	GlobToolName      = "glob"
	ListDirToolName   = "list_dir"
)

// AllToolNames returns the names of every built-in tool.
func AllToolNames() []string {
	return []string{
		ReadFileToolName,
		WriteFileToolName,
		EditFileToolName,
		ShellToolName,
		GrepToolName,
		GlobToolName,
		ListDirToolName,
	}
}

// ValidToolName checks if a name is a built-in tool name.
func ValidToolName(name string) bool {
	_, ok := builtinDefinitions[name]
	return ok
}
