// Package relay implements the per-request orchestration layer of agentrelay.
//
// A Runner drives one core.Adapter run per request on its own goroutine and
// converts the adapter callbacks into core.Event values pushed onto a
// Channel. The request handler consumes the Channel concurrently.
//
// # Responsibilities (abridged)
//   - Instruction validation and the credential pre-check
//   - Callback translation (assistant output, tool results, raw responses)
//   - Screenshot persistence through an ArtifactPersister
//   - Fault containment: engine errors and panics become diagnostic events
//   - Exactly one sentinel per run, pushed on every exit path
//   - Invocation lifecycle management & cancellation
//
// See runner.go for the operational implementation details.
package relay
