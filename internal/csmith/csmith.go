// Package csmith wraps the csmith random C program generator.
package csmith

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/kefir-c/difftest/internal/runner"
)

// DefaultArgs are passed to csmith on every invocation. Packed structs are
// disabled because the compiler under test rejects #pragma pack.
var DefaultArgs = []string{"--no-packed-struct"}

// GenerationError reports a csmith invocation that did not produce a
// program.
type GenerationError struct {
	Path     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "csmith %s", e.Path)
	switch {
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	case e.ExitCode != 0:
		fmt.Fprintf(&b, " exited with status %d", e.ExitCode)
	default:
		b.WriteString(" produced no output")
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, "\n%s", s)
	}
	return b.String()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator produces random C programs.
type Generator struct {
	path       string
	extra      []string
	seed       *uint64
	includeDir string
	runner     *runner.Runner
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes every generated program identical for the given seed.
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.seed = &seed }
}

// WithArgs appends shell-quoted extra csmith flags.
func WithArgs(args []string) Option {
	return func(g *Generator) { g.extra = append(g.extra, args...) }
}

// WithIncludeDir overrides the csmith runtime header directory.
func WithIncludeDir(dir string) Option {
	return func(g *Generator) { g.includeDir = dir }
}

// New creates a Generator for the csmith executable at path. Bare names are
// resolved through PATH.
func New(path string, r *runner.Runner, opts ...Option) (*Generator, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("csmith executable %q: %w", path, err)
	}
	g := &Generator{path: resolved, runner: r}
	for _, o := range opts {
		o(g)
	}
	if g.includeDir == "" {
		g.includeDir = defaultIncludeDir(resolved)
	}
	return g, nil
}

// ParseArgs splits a shell-quoted flag string.
func ParseArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	args, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("parsing arguments %q: %w", s, err)
	}
	return args, nil
}

// defaultIncludeDir locates csmith.h relative to an installed csmith:
// <prefix>/bin/csmith pairs with <prefix>/include.
func defaultIncludeDir(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		path = real
	}
	dir, err := filepath.Abs(filepath.Join(filepath.Dir(path), "..", "include"))
	if err != nil {
		return filepath.Join(filepath.Dir(path), "..", "include")
	}
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		return real
	}
	return dir
}

// Path returns the resolved csmith executable.
func (g *Generator) Path() string { return g.path }

// IncludeDir returns the directory holding csmith's runtime headers.
func (g *Generator) IncludeDir() string { return g.includeDir }

// Seed returns the fixed seed, if any.
func (g *Generator) Seed() (uint64, bool) {
	if g.seed == nil {
		return 0, false
	}
	return *g.seed, true
}

// Argv returns the full command line used for generation.
func (g *Generator) Argv() []string {
	argv := []string{g.path}
	argv = append(argv, DefaultArgs...)
	argv = append(argv, g.extra...)
	if g.seed != nil {
		argv = append(argv, "--seed", strconv.FormatUint(*g.seed, 10))
	}
	return argv
}

// Generate runs csmith and returns the program source.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	argv := g.Argv()
	res, err := g.runner.Run(ctx, argv, runner.WithTimeout(0))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &GenerationError{Path: g.path, Err: err}
	}
	if res.Truncated {
		return "", &GenerationError{Path: g.path, Err: errors.New("program exceeds the output size cap")}
	}
	if res.ExitCode != 0 || len(res.Stdout) == 0 {
		return "", &GenerationError{Path: g.path, ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}
	return string(res.Stdout), nil
}

func (g *Generator) String() string { return g.path }
