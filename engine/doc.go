// Package engine holds what the provider adapters (engine/anthropic,
// engine/openai) share: loop options, tool dispatch, and the aggregate
// transcript returned from core.Adapter.Run.
//
// An adapter run is a tool-use loop:
//
//	for i := 0; i < MaxIterations; i++ {
//	    response := provider.Call(history)
//	    emit assistant events for the response
//	    if no tool calls: return transcript
//	    for each tool call: result := Dispatch(call); append result to history
//	}
//	return ErrMaxIterations
//
// Callbacks fire synchronously from the goroutine that called Run, in the
// order the provider produced the content.
package engine
