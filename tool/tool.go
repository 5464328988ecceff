// Package tool implements the function / tool calling subsystem the engine
// adapters dispatch model tool calls through: schema validated arguments,
// consistent error codes and results converted to core.ToolResult.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/logging"
)

// Error codes carried by ToolError.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
	CodeUnknownTool = "UNKNOWN_TOOL"
)

// Tool defines a capability the model may invoke.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a JSON schema for parameters
//   - Be safe for concurrent use; one Registry serves every request
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description is provided to the model to explain when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments. The returned value is
	// converted with ToResult: a core.ToolResult is used as is, strings become
	// the output, anything else is JSON encoded.
	Call(toolCtx *Context, args map[string]any) (any, error)
}

// Context is handed to every tool call.
type Context struct {
	ctx    context.Context
	callID string
	logger logging.Logger
}

// NewContext creates a tool context for the call identified by callID.
func NewContext(ctx context.Context, callID string, logger logging.Logger) *Context {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Context{ctx: ctx, callID: callID, logger: logger}
}

// Context returns the run context; blocking tools must honour it.
func (c *Context) Context() context.Context { return c.ctx }

// CallID returns the provider's tool call identifier.
func (c *Context) CallID() string { return c.callID }

// Logger returns a logger for the call.
func (c *Context) Logger() logging.Logger { return c.logger }

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
