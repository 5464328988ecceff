package testutil

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/agentrelay/core"
)

// ScriptBuilder provides a fluent helper for constructing scripted engine
// adapters in tests. Example:
//
//	adapter := NewScriptBuilder().Text("hello").ToolCall(map[string]any{"action": "screenshot"}).Build()
//
// The steps are replayed in order on every Run.
type ScriptBuilder struct {
	steps  []func(ctx context.Context, cb core.Callbacks) error
	result string
}

// NewScriptBuilder creates an empty script.
func NewScriptBuilder() *ScriptBuilder { return &ScriptBuilder{} }

// Text emits an assistant text event (chainable).
func (b *ScriptBuilder) Text(t string) *ScriptBuilder {
	return b.Emit(core.NewAssistantTextEvent(t))
}

// ToolCall emits a tool-invocation event (chainable).
func (b *ScriptBuilder) ToolCall(input any) *ScriptBuilder {
	return b.Emit(core.NewToolInvocationEvent(input))
}

// Emit emits an arbitrary assistant event (chainable).
func (b *ScriptBuilder) Emit(ev core.Event) *ScriptBuilder {
	b.steps = append(b.steps, func(_ context.Context, cb core.Callbacks) error {
		cb.Assistant(ev)
		return nil
	})
	return b
}

// ToolResult reports a tool result with the given invocation id (chainable).
func (b *ScriptBuilder) ToolResult(id string, r core.ToolResult) *ScriptBuilder {
	b.steps = append(b.steps, func(_ context.Context, cb core.Callbacks) error {
		cb.ToolResult(r, id)
		return nil
	})
	return b
}

// Screenshot reports a tool result carrying a small PNG (chainable).
func (b *ScriptBuilder) Screenshot(id string) *ScriptBuilder {
	return b.ToolResult(id, core.ToolResult{Base64Image: PNGBase64(2, 2)})
}

// APIResponse forwards a raw provider response body (chainable).
func (b *ScriptBuilder) APIResponse(body string) *ScriptBuilder {
	b.steps = append(b.steps, func(_ context.Context, cb core.Callbacks) error {
		cb.APIResponse([]byte(body))
		return nil
	})
	return b
}

// Fail makes the run return err at this point (chainable).
func (b *ScriptBuilder) Fail(err error) *ScriptBuilder {
	b.steps = append(b.steps, func(context.Context, core.Callbacks) error { return err })
	return b
}

// Panic makes the run panic with v at this point (chainable).
func (b *ScriptBuilder) Panic(v any) *ScriptBuilder {
	b.steps = append(b.steps, func(context.Context, core.Callbacks) error { panic(v) })
	return b
}

// Block waits until release is closed or the run context is done (chainable).
func (b *ScriptBuilder) Block(release <-chan struct{}) *ScriptBuilder {
	b.steps = append(b.steps, func(ctx context.Context, _ core.Callbacks) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return b
}

// Result sets the aggregate result returned by Run (chainable).
func (b *ScriptBuilder) Result(s string) *ScriptBuilder { b.result = s; return b }

// Build returns the adapter.
func (b *ScriptBuilder) Build() *ScriptedAdapter {
	return &ScriptedAdapter{steps: append([]func(context.Context, core.Callbacks) error{}, b.steps...), result: b.result}
}

// ScriptedAdapter is a core.Adapter replaying a fixed script.
type ScriptedAdapter struct {
	steps  []func(ctx context.Context, cb core.Callbacks) error
	result string

	calls    atomic.Int32
	lastReq  atomic.Pointer[core.Request]
	lastDone atomic.Bool
}

// Run implements core.Adapter.
func (a *ScriptedAdapter) Run(ctx context.Context, req core.Request, cb core.Callbacks) (string, error) {
	a.calls.Add(1)
	a.lastReq.Store(&req)
	a.lastDone.Store(false)
	for _, step := range a.steps {
		if err := step(ctx, cb); err != nil {
			return "", err
		}
	}
	a.lastDone.Store(true)
	return a.result, nil
}

// Calls returns how often Run was invoked.
func (a *ScriptedAdapter) Calls() int { return int(a.calls.Load()) }

// LastRequest returns the request of the most recent Run, or nil.
func (a *ScriptedAdapter) LastRequest() *core.Request { return a.lastReq.Load() }

// Completed reports whether the most recent Run reached the end of the script.
func (a *ScriptedAdapter) Completed() bool { return a.lastDone.Load() }
