// Package artifact contains concrete implementations of core.ArtifactStore and
// the Persister that turns image-carrying tool results into stored artifacts.
//
// The canonical ArtifactStore interface lives in the core package to avoid
// dependency cycles and keep domain contracts central. Implementation packages
// like this one (filesystem, in-memory) provide storage backends that can be
// swapped without touching calling code.
//
// Artifacts are retained indefinitely: stores never overwrite or delete.
package artifact
