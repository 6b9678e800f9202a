// Package scratch manages scoped temporary directories. Every pipeline
// attempt acquires its own Dir and releases it on every exit path, so no
// two attempts ever share a filesystem path.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Dir is a temporary directory that is removed by Release.
type Dir struct {
	mu       sync.Mutex
	path     string
	released bool
}

// New creates a fresh directory under root. An empty root means the
// system temp directory.
func New(root, pattern string) (*Dir, error) {
	path, err := os.MkdirTemp(root, pattern)
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// Join returns name resolved inside the directory.
func (d *Dir) Join(name string) string {
	return filepath.Join(d.path, name)
}

// WriteFile writes data to name inside the directory and returns its path.
func (d *Dir) WriteFile(name string, data []byte, perm os.FileMode) (string, error) {
	path := d.Join(name)
	if err := os.WriteFile(path, data, perm); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// Release removes the directory and everything in it. It is safe to call
// more than once.
func (d *Dir) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	d.released = true
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("removing scratch directory %s: %w", d.path, err)
	}
	return nil
}
