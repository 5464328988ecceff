package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/logging"
)

// Registry holds the tools offered to the model and dispatches its calls.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry with the given tools. It panics on duplicate
// names, which are a programming error.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tools sorted by name, so request payloads are
// stable across calls.
func (r *Registry) List() []Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs the named tool with raw JSON arguments and converts the
// outcome into a ToolResult. Failures of any kind are reported in
// ToolResult.Error so they can be handed back to the model.
func (r *Registry) Execute(ctx context.Context, callID, name string, rawArgs []byte, logger logging.Logger) core.ToolResult {
	t, ok := r.Get(name)
	if !ok {
		return ToResult(nil, NewToolError(name, "no such tool", CodeUnknownTool))
	}

	args, err := util.ParseArguments(rawArgs)
	if err != nil {
		return ToResult(nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeValidation})
	}

	return ToResult(t.Call(NewContext(ctx, callID, logger), args))
}

// ToResult converts a tool return value into a ToolResult.
func ToResult(v any, err error) core.ToolResult {
	if err != nil {
		return core.ToolResult{Error: err.Error()}
	}
	switch r := v.(type) {
	case nil:
		return core.ToolResult{}
	case core.ToolResult:
		return r
	case *core.ToolResult:
		if r == nil {
			return core.ToolResult{}
		}
		return *r
	case string:
		return core.ToolResult{Output: r}
	case fmt.Stringer:
		return core.ToolResult{Output: r.String()}
	default:
		b, jerr := json.Marshal(r)
		if jerr != nil {
			return core.ToolResult{Output: fmt.Sprintf("%v", r)}
		}
		return core.ToolResult{Output: string(b)}
	}
}
