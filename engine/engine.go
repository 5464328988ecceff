package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tool"
)

// ErrMaxIterations is returned when the model keeps requesting tools past
// Options.MaxIterations.
var ErrMaxIterations = errors.New("maximum iterations reached")

// Defaults shared by the adapters.
const (
	DefaultMaxTokens     = 4096
	DefaultMaxIterations = 25
	DefaultMaxImages     = 10
)

// Options are the loop settings every adapter understands.
type Options struct {
	// SystemPrompt is sent with every provider call when non-empty.
	SystemPrompt string
	// Tools offered to the model. Nil offers none.
	Tools *tool.Registry
	// MaxTokens bounds each model response.
	MaxTokens int64
	// Temperature is sent only when non-nil.
	Temperature *float64
	// MaxIterations bounds the number of provider calls per run.
	MaxIterations int
	// MaxImages keeps only the most recent images in the history sent to
	// the provider. Zero keeps all.
	MaxImages int
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// DefaultOptions returns the baseline loop settings.
func DefaultOptions() Options {
	return Options{
		MaxTokens:     DefaultMaxTokens,
		MaxIterations: DefaultMaxIterations,
		MaxImages:     DefaultMaxImages,
		Logger:        logging.NoOpLogger{},
	}
}

// Call is one tool call requested by the model.
type Call struct {
	ID    string
	Name  string
	Input []byte
}

// Dispatch executes call through tools, reports the result to cb and returns
// it for the next provider request.
func Dispatch(ctx context.Context, tools *tool.Registry, cb core.Callbacks, call Call, logger logging.Logger) core.ToolResult {
	start := time.Now()
	result := tools.Execute(ctx, call.ID, call.Name, call.Input, logger)
	logger.Debug("engine.tool.done",
		"tool_name", call.Name,
		"tool_use_id", call.ID,
		"duration", time.Since(start),
		"error", result.Error,
		"image", result.HasImage(),
	)
	cb.ToolResult(result, call.ID)
	return result
}

// InvocationPayload converts raw tool-call arguments into the payload of a
// tool-invocation event. It returns nil for empty input, which adapters skip.
func InvocationPayload(raw []byte) any {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")), bytes.Equal(raw, []byte("{}")):
		return nil
	case json.Valid(raw):
		return json.RawMessage(bytes.Clone(raw))
	default:
		return string(raw)
	}
}

// EmitText reports a non-empty assistant text block.
func EmitText(cb core.Callbacks, text string, transcript *Transcript) {
	if text == "" {
		return
	}
	transcript.Add(text)
	cb.Assistant(core.NewAssistantTextEvent(text))
}

// EmitInvocation reports a tool call with renderable input.
func EmitInvocation(cb core.Callbacks, input []byte) {
	if p := InvocationPayload(input); p != nil {
		cb.Assistant(core.NewToolInvocationEvent(p))
	}
}

// Transcript accumulates the aggregate textual result of a run.
type Transcript struct {
	parts []string
}

// Add appends a text contribution.
func (t *Transcript) Add(s string) {
	if s != "" {
		t.parts = append(t.parts, s)
	}
}

// String joins the contributions with newlines.
func (t *Transcript) String() string { return strings.Join(t.parts, "\n") }
