package report

import (
	"fmt"
	"os"
	"path/filepath"
)

// ArtifactWriter persists test program sources into an output directory.
// Passing tests are named {stamp}_{index}.c and failing tests
// {stamp}_{index}_fail.c; nothing else is written to the directory.
type ArtifactWriter struct {
	Dir string
}

// NewArtifactWriter creates dir if it is missing.
func NewArtifactWriter(dir string) (*ArtifactWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", dir, err)
	}
	return &ArtifactWriter{Dir: dir}, nil
}

// Name returns the artifact file name for a test.
func Name(stamp int64, index int, outcome Outcome) string {
	if outcome == Fail {
		return fmt.Sprintf("%d_%d_fail.c", stamp, index)
	}
	return fmt.Sprintf("%d_%d.c", stamp, index)
}

// Save writes source atomically and returns the artifact path.
func (w *ArtifactWriter) Save(stamp int64, index int, outcome Outcome, source string) (string, error) {
	path := filepath.Join(w.Dir, Name(stamp, index, outcome))
	if err := atomicWrite(path, []byte(source)); err != nil {
		return "", err
	}
	return path, nil
}

// atomicWrite writes data to a temp file in the target's directory and
// renames it into place, so readers never observe a partial file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	tmp = nil
	return nil
}
