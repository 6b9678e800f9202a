// Package compdb exports a compilation database from per-object command
// files. Each command file holds four lines: the working directory, the
// source file, the build target (ignored) and the compile command.
package compdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kefir-c/difftest/internal/logger"
)

// DefaultPattern matches every file; command files are recognised by
// their four-line shape.
const DefaultPattern = "*"

// Entry is one compilation database record.
type Entry struct {
	Directory string `json:"directory"`
	File      string `json:"file"`
	Command   string `json:"command"`

	Path string `json:"-"` // command file the entry was read from
}

// Scan walks root in lexical order and parses every file whose base name
// matches pattern. Files that do not hold exactly four lines are skipped,
// logged at debug level under the default pattern and as a warning when a
// narrower pattern selected them.
func Scan(root, pattern string, log logger.Logger) ([]Entry, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if log == nil {
		log = logger.Discard()
	}
	skip := log.Warnf
	if pattern == DefaultPattern {
		skip = log.Debugf
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		entry, err := parse(data)
		if err != nil {
			skip("Skipping %s: %v", path, err)
			return nil
		}
		entry.Path = path
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func parse(data []byte) (Entry, error) {
	text := strings.TrimSuffix(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	lines := strings.Split(text, "\n")
	if len(lines) != 4 {
		return Entry{}, fmt.Errorf("expected 4 lines, found %d", len(lines))
	}
	return Entry{Directory: lines[0], File: lines[1], Command: lines[3]}, nil
}

// WriteJSON writes entries as a JSON array indented by two spaces.
func WriteJSON(w io.Writer, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WritePaths writes the absolute command file path of each entry, one per
// line.
func WritePaths(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.Path); err != nil {
			return err
		}
	}
	return nil
}
