package artifact

import "errors"

var (
	// ErrNotFound is returned when an artifact with the given name does not
	// exist in the underlying store.
	ErrNotFound = errors.New("artifact not found")

	// ErrExists is returned when saving under a name that is already taken.
	// Artifacts are written once and never rewritten.
	ErrExists = errors.New("artifact already exists")

	// ErrInvalidName is returned for names that would escape the store root.
	ErrInvalidName = errors.New("invalid artifact name")
)
