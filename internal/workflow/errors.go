package workflow

import (
	"errors"
	"fmt"

	"github.com/kefir-c/difftest/internal/compiler"
	"github.com/kefir-c/difftest/internal/csmith"
	"github.com/kefir-c/difftest/internal/runner"
)

// ErrWorkersExited is returned by Run when every worker has stopped while
// test indices were still outstanding.
var ErrWorkersExited = errors.New("all workers exited before every test produced a result")

// PanicError carries a panic recovered inside a pipeline stage.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// ErrorKind classifies why an attempt ended.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindGeneration ErrorKind = "generation"
	KindCompile    ErrorKind = "compile"
	KindTimeout    ErrorKind = "timeout"
	KindCrash      ErrorKind = "crash"
	KindMismatch   ErrorKind = "mismatch"
	KindOverflow   ErrorKind = "output-overflow"
	KindExhausted  ErrorKind = "retries-exhausted"
	KindUnexpected ErrorKind = "unexpected"
	KindPanic      ErrorKind = "panic"
)

// Classify maps a stage error onto an ErrorKind. Execution timeouts are
// not errors and never classify as KindTimeout.
func Classify(err error) ErrorKind {
	var (
		genErr     *csmith.GenerationError
		compileErr *compiler.CompileError
		exitErr    *runner.ExitError
		panicErr   *PanicError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &genErr):
		return KindGeneration
	case errors.As(err, &compileErr):
		return KindCompile
	case errors.As(err, &exitErr):
		return KindCrash
	case errors.As(err, &panicErr):
		return KindPanic
	default:
		return KindUnexpected
	}
}
