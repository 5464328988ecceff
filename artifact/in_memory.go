package artifact

import (
	"path"
	"sort"
	"sync"
)

// InMemoryStore is a trivial in-process ArtifactStore implementation useful
// for tests, examples and single-process prototypes. It keeps all artifacts in
// a map guarded by an RWMutex. Data is copied on save / retrieval to avoid
// accidental external mutation of internal buffers.
//
// Layout: name -> raw bytes
type InMemoryStore struct {
	mu        sync.RWMutex
	prefix    string
	artifacts map[string][]byte
}

// NewInMemoryStore returns an empty in-memory artifact store. References
// returned by Save are prefix/name.
func NewInMemoryStore(prefix string) *InMemoryStore {
	return &InMemoryStore{prefix: prefix, artifacts: make(map[string][]byte)}
}

// Save stores the artifact bytes under name. The input slice is copied before
// storage. Saving an existing name returns ErrExists.
func (a *InMemoryStore) Save(name string, data []byte) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.artifacts[name]; exists {
		return "", ErrExists
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	a.artifacts[name] = cp
	return path.Join(a.prefix, name), nil
}

// Get returns a copy of the stored artifact bytes or ErrNotFound.
func (a *InMemoryStore) Get(name string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.artifacts[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// List returns the sorted artifact names. The slice is a snapshot and safe for
// caller mutation.
func (a *InMemoryStore) List() ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.artifacts))
	for name := range a.artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
