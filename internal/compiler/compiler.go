// Package compiler drives the two C compilers under comparison: the
// compiler under test, which reads its source from stdin, and a reference
// compiler invoked on a source file.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kefir-c/difftest/internal/runner"
	"github.com/kefir-c/difftest/internal/scratch"
)

// Compiler turns C source into an executable image.
type Compiler interface {
	Name() string
	Compile(ctx context.Context, source string) ([]byte, error)
}

// CompileError reports a compiler that rejected its input or crashed.
type CompileError struct {
	Compiler string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	switch {
	case e.Err != nil:
		fmt.Fprintf(&b, "%s: %v", e.Compiler, e.Err)
	default:
		fmt.Fprintf(&b, "%s exited with status %d", e.Compiler, e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, "\n%s", s)
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

// Options are shared by both compiler kinds.
type Options struct {
	Path       string
	IncludeDir string
	Flags      []string
	TempRoot   string // "" = os.TempDir
	Runner     *runner.Runner
}

// Kefir invokes the compiler under test.
type Kefir struct {
	opts Options
}

// NewKefir returns the compiler under test.
func NewKefir(opts Options) *Kefir { return &Kefir{opts: opts} }

func (k *Kefir) Name() string { return "kefir" }

// Argv returns the command line for an output path.
func (k *Kefir) Argv(out string) []string {
	argv := []string{k.opts.Path, "-O1", "-fPIC"}
	if k.opts.IncludeDir != "" {
		argv = append(argv, "-I", k.opts.IncludeDir)
	}
	argv = append(argv, k.opts.Flags...)
	return append(argv, "-o", out, "-")
}

// Compile pipes source into kefir and returns the linked executable.
func (k *Kefir) Compile(ctx context.Context, source string) ([]byte, error) {
	dir, err := scratch.New(k.opts.TempRoot, "kefir-*")
	if err != nil {
		return nil, err
	}
	defer dir.Release()

	out := dir.Join("a.out")
	return compile(ctx, k.Name(), k.opts.Runner, k.Argv(out), out,
		runner.WithStdin([]byte(source)), runner.WithDir(dir.Path()))
}

// Reference invokes the trusted host compiler.
type Reference struct {
	opts Options
}

// NewReference returns the reference compiler.
func NewReference(opts Options) *Reference { return &Reference{opts: opts} }

func (r *Reference) Name() string { return filepath.Base(r.opts.Path) }

// Argv returns the command line for the given input and output paths.
func (r *Reference) Argv(in, out string) []string {
	argv := []string{r.opts.Path, "-w", "-O2", "-fPIC"}
	if r.opts.IncludeDir != "" {
		argv = append(argv, "-I", r.opts.IncludeDir)
	}
	argv = append(argv, r.opts.Flags...)
	return append(argv, "-o", out, in)
}

// Compile writes source to a scoped .c file, compiles it and returns the
// linked executable.
func (r *Reference) Compile(ctx context.Context, source string) ([]byte, error) {
	dir, err := scratch.New(r.opts.TempRoot, "cc-*")
	if err != nil {
		return nil, err
	}
	defer dir.Release()

	in, err := dir.WriteFile("test.c", []byte(source), 0o600)
	if err != nil {
		return nil, err
	}
	out := dir.Join("a.out")
	return compile(ctx, r.Name(), r.opts.Runner, r.Argv(in, out), out, runner.WithDir(dir.Path()))
}

func compile(ctx context.Context, name string, r *runner.Runner, argv []string, out string, opts ...runner.RunOption) ([]byte, error) {
	res, err := r.Run(ctx, argv, append(opts, runner.WithTimeout(0))...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &CompileError{Compiler: name, Err: err}
	}
	if res.ExitCode != 0 {
		return nil, &CompileError{Compiler: name, ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}
	image, err := os.ReadFile(out)
	if err != nil {
		return nil, &CompileError{
			Compiler: name,
			Stderr:   string(res.Stderr),
			Err:      fmt.Errorf("reading output: %w", err),
		}
	}
	return image, nil
}
