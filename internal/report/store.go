// Package report provides persistence of harness output: the C sources of
// failing (and optionally passing) tests, and structured run reports that
// can be inspected after a run finishes.
package report

import (
	"fmt"
	"time"
)

// Outcome is the terminal verdict of a single test.
type Outcome string

const (
	Pass Outcome = "pass"
	Fail Outcome = "fail"
)

// Store persists and retrieves run reports.
type Store interface {
	Save(r *RunReport) error
	Load(runID string) (*RunReport, error)
}

// RunReport is the structured summary of one harness run.
type RunReport struct {
	ID        string        `json:"id"`
	Stamp     int64         `json:"stamp"` // run start, Unix milliseconds
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Tests   int  `json:"tests"`
	Jobs    int  `json:"jobs"`
	SaveAll bool `json:"save_all,omitempty"`

	Total   int `json:"total"`
	Failed  int `json:"failed"`
	Retries int `json:"retries"`

	Failures  []Failure `json:"failures,omitempty"`
	Artifacts []string  `json:"artifacts,omitempty"`
}

// Failure describes one failed test index.
type Failure struct {
	Index    int    `json:"index"`
	Worker   int    `json:"worker"`
	Attempts int    `json:"attempts"`
	Kind     string `json:"kind"`
	Reason   string `json:"reason"`
	Diff     string `json:"diff,omitempty"`
	Artifact string `json:"artifact,omitempty"`
}

// Passed reports whether no test failed.
func (r *RunReport) Passed() bool { return r.Failed == 0 }

// Failure returns the failure recorded for index.
func (r *RunReport) Failure(index int) (*Failure, error) {
	for i := range r.Failures {
		if r.Failures[i].Index == index {
			return &r.Failures[i], nil
		}
	}
	return nil, fmt.Errorf("run %s has no failure for test %d", r.ID, index)
}
