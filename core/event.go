package core

import (
	"fmt"

	"github.com/google/uuid"
)

// Structured event tags understood by the renderer.
const (
	TagText           = "text"
	TagToolInvocation = "tool-invocation"
)

// Event is a discrete unit of progress information produced during one run.
// Concrete event types implement the unexported isEvent marker enabling a
// closed set; consumers switch over the variants below.
type Event interface{ isEvent() }

// TextEvent is natural-language progress text.
type TextEvent struct {
	Text string
}

// isEvent implements the Event interface for TextEvent.
func (TextEvent) isEvent() {}

// StructuredEvent is a tagged payload. Tag is usually TagText (Payload is a
// string) or TagToolInvocation (Payload is the tool input: a string or a
// nested map / slice).
type StructuredEvent struct {
	Tag     string
	Payload any
}

// isEvent implements the Event interface for StructuredEvent.
func (StructuredEvent) isEvent() {}

// RawContentEvent carries an upstream API response body forwarded wholesale.
// Its "content" array holds heterogeneous text and tool_use blocks.
type RawContentEvent struct {
	Body []byte
}

// isEvent implements the Event interface for RawContentEvent.
func (RawContentEvent) isEvent() {}

// ArtifactEvent references an artifact persisted while handling a tool result.
type ArtifactEvent struct {
	Artifact Artifact
}

// isEvent implements the Event interface for ArtifactEvent.
func (ArtifactEvent) isEvent() {}

// DiagnosticEvent is a user-visible error or operator hint. Faults raised
// anywhere behind the relay end up as one of these.
type DiagnosticEvent struct {
	Message string
}

// isEvent implements the Event interface for DiagnosticEvent.
func (DiagnosticEvent) isEvent() {}

// NewTextEvent creates a TextEvent.
func NewTextEvent(text string) TextEvent { return TextEvent{Text: text} }

// NewAssistantTextEvent creates a StructuredEvent tagged as text.
func NewAssistantTextEvent(text string) StructuredEvent {
	return StructuredEvent{Tag: TagText, Payload: text}
}

// NewToolInvocationEvent creates a StructuredEvent describing a tool call input.
func NewToolInvocationEvent(input any) StructuredEvent {
	return StructuredEvent{Tag: TagToolInvocation, Payload: input}
}

// NewDiagnosticEvent formats a DiagnosticEvent.
func NewDiagnosticEvent(format string, args ...any) DiagnosticEvent {
	return DiagnosticEvent{Message: fmt.Sprintf(format, args...)}
}

// NewID generates a new unique identifier for invocations and requests.
func NewID() string { return uuid.NewString() }
