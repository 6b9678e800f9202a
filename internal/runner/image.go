package runner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kefir-c/difftest/internal/scratch"
)

// ExitError reports a test program that terminated unsuccessfully.
type ExitError struct {
	Code   int
	Stderr []byte
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return "test program was killed by a signal"
	}
	return fmt.Sprintf("test program exited with status %d", e.Code)
}

// ImageRunner materialises compiled binaries and runs them.
type ImageRunner struct {
	Runner   *Runner
	TempRoot string // parent of per-run scratch directories; "" = os.TempDir
}

// Run writes image to a scoped executable file, runs it without arguments
// and returns its standard output. A run that exceeds timeout yields
// Outcome.TimedOut and a nil error. A non-zero exit is an *ExitError.
// The executable is removed before Run returns.
func (ir *ImageRunner) Run(ctx context.Context, image []byte, timeout time.Duration) (Outcome, error) {
	dir, err := scratch.New(ir.TempRoot, "exe-*")
	if err != nil {
		return Outcome{}, err
	}
	defer dir.Release()

	path, err := dir.WriteFile("a.out", image, 0o600)
	if err != nil {
		return Outcome{}, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.Chmod(path, fi.Mode()|0o100); err != nil {
		return Outcome{}, fmt.Errorf("marking %s executable: %w", path, err)
	}

	res, err := ir.Runner.Run(ctx, []string{path}, WithDir(dir.Path()), WithTimeout(timeout))
	if err != nil {
		return Outcome{}, err
	}
	if res.TimedOut {
		return Outcome{TimedOut: true}, nil
	}
	if res.ExitCode != 0 {
		return Outcome{}, &ExitError{Code: res.ExitCode, Stderr: res.Stderr}
	}
	return Outcome{Stdout: res.Stdout, Truncated: res.Truncated}, nil
}
