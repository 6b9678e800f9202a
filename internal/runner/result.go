package runner

import "time"

// Result holds the output of a command execution.
type Result struct {
	RunID           string        // unique identifier for this run
	ExitCode        int           // process exit code, -1 when killed
	Stdout          []byte        // captured stdout (may be truncated)
	Stderr          []byte        // captured stderr (may be truncated)
	Truncated       bool          // stdout bytes past the size cap were dropped
	StderrTruncated bool          // stderr bytes past the size cap were dropped
	TimedOut        bool          // the timeout killed the process
	Duration        time.Duration // wall-clock time of the run
}

// Outcome is the result of running a compiled test program: either it
// completed with the given stdout or it was stopped by the timeout.
type Outcome struct {
	TimedOut  bool
	Stdout    []byte
	Truncated bool // stdout was cut at the capture limit
}
