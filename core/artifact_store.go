package core

import "time"

// Artifact is a persisted binary side-output (an image produced by a tool).
// Artifacts are written once and never mutated.
type Artifact struct {
	// Path is the store reference, e.g. "screenshots/screenshot_20250101_120000_abc.png".
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	// URL is the client-facing reference, set when the store is served.
	URL          string    `json:"url,omitempty"`
	InvocationID string    `json:"invocation_id"`
	CreatedAt    time.Time `json:"created_at"`
	Size         int       `json:"size"`
}

// ArtifactStore defines the interface for artifact persistence. Implementations
// must be safe for concurrent use; names are unique per artifact and a store
// never overwrites an existing name.
type ArtifactStore interface {
	// Save writes data under name and returns the reference callers can surface.
	Save(name string, data []byte) (string, error)
	Get(name string) ([]byte, error)
	List() ([]string, error)
}
