package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore persists artifacts as files inside a single directory. The
// directory is created on the first Save, so a process that never stores an
// artifact never touches the filesystem. Files are created exclusively and
// never rewritten or removed.
//
// FileStore is safe for concurrent use; uniqueness of names is the caller's
// responsibility and is enforced with O_EXCL.
type FileStore struct {
	dir      string
	dirPerm  fs.FileMode
	filePerm fs.FileMode
}

// FileStoreOptions configures a FileStore.
type FileStoreOptions struct {
	DirPerm  fs.FileMode
	FilePerm fs.FileMode
}

// NewFileStore creates a store rooted at dir. References returned by Save are
// dir joined with the artifact name.
func NewFileStore(dir string, optFns ...func(o *FileStoreOptions)) *FileStore {
	opts := FileStoreOptions{
		DirPerm:  0o755,
		FilePerm: 0o644,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &FileStore{dir: dir, dirPerm: opts.DirPerm, filePerm: opts.FilePerm}
}

// Dir returns the root directory of the store.
func (s *FileStore) Dir() string { return s.dir }

// Save writes data to dir/name, creating dir if needed.
func (s *FileStore) Save(name string, data []byte) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, s.dirPerm); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	p := filepath.Join(s.dir, name)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.filePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, p)
		}
		return "", fmt.Errorf("create artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}
	return filepath.ToSlash(p), nil
}

// Get reads the artifact stored under name.
func (s *FileStore) Get(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// List returns the sorted names of stored artifacts. A missing directory is
// an empty store.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
