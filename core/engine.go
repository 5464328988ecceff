package core

import "context"

// Request is the input of one engine run.
type Request struct {
	Instruction string
	// Credential is the provider credential read once at the start of the run.
	Credential string
}

// Callbacks are the event slots an Adapter drives during a run. Nil slots are
// ignored by the helper methods, so adapters can call them unconditionally.
type Callbacks struct {
	// OnAssistant receives assistant output (text or tool invocation) as it occurs.
	OnAssistant func(ev Event)
	// OnToolResult receives the result of each tool invocation with its id.
	OnToolResult func(result ToolResult, invocationID string)
	// OnAPIResponse receives raw provider response bodies when forwarded wholesale.
	OnAPIResponse func(body []byte)
}

// Assistant invokes OnAssistant if set.
func (c Callbacks) Assistant(ev Event) {
	if c.OnAssistant != nil {
		c.OnAssistant(ev)
	}
}

// ToolResult invokes OnToolResult if set.
func (c Callbacks) ToolResult(result ToolResult, invocationID string) {
	if c.OnToolResult != nil {
		c.OnToolResult(result, invocationID)
	}
}

// APIResponse invokes OnAPIResponse if set.
func (c Callbacks) APIResponse(body []byte) {
	if c.OnAPIResponse != nil {
		c.OnAPIResponse(body)
	}
}

// Adapter is the agent engine consumed by the relay.
//
// Implementations:
//   - Invoke the callbacks zero or more times, sequentially and in the order
//     events occur, from the goroutine that called Run
//   - Return an aggregate textual result (the relay discards it; the events
//     are the product)
//   - Honour ctx cancellation on blocking provider calls
type Adapter interface {
	Run(ctx context.Context, req Request, cb Callbacks) (string, error)
}

// AdapterFunc allows plain functions to be used as an Adapter.
type AdapterFunc func(ctx context.Context, req Request, cb Callbacks) (string, error)

// Run implements Adapter.
func (f AdapterFunc) Run(ctx context.Context, req Request, cb Callbacks) (string, error) {
	return f(ctx, req, cb)
}
