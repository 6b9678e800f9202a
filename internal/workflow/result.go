package workflow

import (
	"time"

	"github.com/kefir-c/difftest/internal/report"
)

// TestResult is the terminal record for one test index. Exactly one is
// collected per index.
type TestResult struct {
	WorkerID  int
	Index     int
	Timestamp time.Time
	Source    string // empty when generation failed
	Outcome   report.Outcome
	Attempts  int
	Kind      ErrorKind
	Reason    string
	Diff      string
}

// Failed reports whether the test failed.
func (r TestResult) Failed() bool { return r.Outcome == report.Fail }

// Summary is the aggregate result of a run.
type Summary struct {
	RunID     string
	Stamp     int64 // run start, Unix milliseconds
	StartedAt time.Time
	Duration  time.Duration

	Total   int
	Failed  int
	Retries int

	Failures  []TestResult
	Artifacts []string

	artifactOf map[int]string
}

// Passed reports whether every test passed.
func (s *Summary) Passed() bool { return s.Failed == 0 }

// Report converts the summary into a persistable run report.
func (s *Summary) Report(tests, jobs int, saveAll bool) *report.RunReport {
	r := &report.RunReport{
		ID:        s.RunID,
		Stamp:     s.Stamp,
		StartedAt: s.StartedAt,
		Duration:  s.Duration,
		Tests:     tests,
		Jobs:      jobs,
		SaveAll:   saveAll,
		Total:     s.Total,
		Failed:    s.Failed,
		Retries:   s.Retries,
		Artifacts: s.Artifacts,
	}
	for _, f := range s.Failures {
		r.Failures = append(r.Failures, report.Failure{
			Index:    f.Index,
			Worker:   f.WorkerID,
			Attempts: f.Attempts,
			Kind:     string(f.Kind),
			Reason:   f.Reason,
			Diff:     f.Diff,
			Artifact: s.artifactOf[f.Index],
		})
	}
	return r
}
