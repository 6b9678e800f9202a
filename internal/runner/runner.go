// Package runner provides subprocess execution with timeouts, output size
// limits and process-group cleanup. It backs every external tool the
// harness drives: the program generator, both compilers and the compiled
// test programs.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/uuid"
)

// DefaultWaitDelay bounds how long Run waits for output pipes to drain
// after the process has been killed.
const DefaultWaitDelay = time.Second

// Runner executes commands with an optional default timeout.
type Runner struct {
	Timeout   time.Duration // 0 means no timeout
	MaxOutput int           // bytes per stream, 0 means unlimited
}

// RunOption customises a single Run call.
type RunOption func(*runOptions)

type runOptions struct {
	dir     string
	stdin   []byte
	timeout time.Duration
}

// WithDir sets the working directory of the command.
func WithDir(dir string) RunOption {
	return func(o *runOptions) { o.dir = dir }
}

// WithStdin feeds data to the command's standard input.
func WithStdin(data []byte) RunOption {
	return func(o *runOptions) { o.stdin = data }
}

// WithTimeout overrides the runner's timeout for this call.
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) { o.timeout = d }
}

// Run executes argv. The first element is the binary (resolved via PATH
// when it has no slash). A non-zero exit is reported through
// Result.ExitCode; an error is returned only when the command could not be
// started or ctx was cancelled. Being killed by the timeout sets
// Result.TimedOut.
func (r *Runner) Run(ctx context.Context, argv []string, opts ...RunOption) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	o := runOptions{timeout: r.Timeout}
	for _, opt := range opts {
		opt(&o)
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.timeout)
	}
	defer cancel()

	var (
		res *Result
		err error
	)
	for attempt := 0; ; attempt++ {
		res, err = r.start(runCtx, argv, o)
		// A freshly written executable can still be open for writing in a
		// child forked concurrently by another goroutine.
		if err != nil && isTextBusy(err) && attempt < 5 {
			time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
			continue
		}
		break
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("executing %s: %w", argv[0], err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return res, nil
}

func (r *Runner) start(ctx context.Context, argv []string, o runOptions) (*Result, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = o.dir
	if o.stdin != nil {
		cmd.Stdin = bytes.NewReader(o.stdin)
	}
	setProcessGroup(cmd)
	cmd.WaitDelay = DefaultWaitDelay

	var stdout, stderr bytes.Buffer
	outw := &limitWriter{buf: &stdout, limit: r.MaxOutput}
	errw := &limitWriter{buf: &stderr, limit: r.MaxOutput}
	cmd.Stdout = outw
	cmd.Stderr = errw

	began := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(began)

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
		case cmd.ProcessState != nil:
			// Exited, but a leftover descendant kept the pipes open
			// until WaitDelay force-closed them.
			exitCode = cmd.ProcessState.ExitCode()
		default:
			return nil, runErr
		}
	}

	// Only a process the deadline actually killed has timed out. One that
	// exited on its own while its output was still draining has not.
	timedOut := o.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) &&
		killedBySignal(cmd.ProcessState)

	return &Result{
		RunID:           uuid.New().String(),
		ExitCode:        exitCode,
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		Truncated:       outw.dropped,
		StderrTruncated: errw.dropped,
		TimedOut:        timedOut,
		Duration:        elapsed,
	}, nil
}

// limitWriter writes up to limit bytes to buf, then silently discards the
// rest and sets dropped. A non-positive limit disables the cap.
type limitWriter struct {
	buf     *bytes.Buffer
	limit   int
	dropped bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			w.dropped = true
		}
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Write only what fits, but report all bytes as consumed
		// to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		w.dropped = true
		return len(p), nil
	}
	return w.buf.Write(p)
}
