// Package core provides the foundational domain types and interfaces used by
// agentrelay. It defines the core abstractions for:
//
//   - Events (the closed set of progress records emitted by an engine run)
//   - ToolResults (per tool invocation output, possibly carrying an image)
//   - Artifacts (persisted binary side-outputs referenced by invocation id)
//   - Adapters (the external agent engine, driven through callbacks)
//   - Pluggable artifact stores
//
// The package intentionally keeps implementation concerns (relay, rendering,
// persistence, concrete engines) out of scope, exposing small interfaces so
// custom backends can be substituted in tests and production.
package core
