package workflow

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"

	"github.com/kefir-c/difftest/internal/report"
)

// claimLoop takes indices from work until it is closed or ctx is done.
// A panic escaping this loop kills the worker; per-attempt panics are
// contained in runTest.
func (e *Engine) claimLoop(ctx context.Context, id int, work <-chan int, results chan<- TestResult, retries *atomic.Int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case index, ok := <-work:
			if !ok {
				return
			}
			e.log().Debugf("Worker %d claimed test %d", id, index)
			res, ok := e.runTest(ctx, id, index, retries)
			if !ok {
				return
			}
			results <- res
		}
	}
}

// runTest drives one index through the pipeline, regenerating the program
// whenever an execution times out. It reports false when ctx was
// cancelled before a terminal result was reached.
func (e *Engine) runTest(ctx context.Context, workerID, index int, retries *atomic.Int64) (TestResult, bool) {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return TestResult{}, false
		}
		if e.MaxAttempts > 0 && attempt > e.MaxAttempts {
			return TestResult{
				WorkerID:  workerID,
				Index:     index,
				Timestamp: e.now(),
				Outcome:   report.Fail,
				Attempts:  attempt - 1,
				Kind:      KindExhausted,
				Reason:    fmt.Sprintf("retry budget exhausted after %d timed-out attempts", attempt-1),
			}, true
		}

		var (
			pc  panics.Catcher
			out attemptResult
		)
		pc.Try(func() { out = e.attempt(ctx, index) })
		if r := pc.Recovered(); r != nil {
			e.log().Errorf("Test %d: panic during attempt %d: %v\n%s", index, attempt, r.Value, r.Stack)
			out = attemptResult{
				source: out.source,
				kind:   KindPanic,
				reason: fmt.Sprintf("panic: %v", r.Value),
			}
		}
		e.metrics().RecordAttempt(attemptLabel(out.kind))

		switch out.kind {
		case kindCancelled:
			return TestResult{}, false
		case KindTimeout:
			retries.Add(1)
			e.metrics().RecordRetry()
			if e.FixedSeed {
				e.log().Warnf("Test %d timed out with a fixed seed; the retry regenerates the same program", index)
			} else {
				e.log().Debugf("Test %d timed out on attempt %d; generating a new program", index, attempt)
			}
			continue
		}

		res := TestResult{
			WorkerID:  workerID,
			Index:     index,
			Timestamp: e.now(),
			Attempts:  attempt,
			Kind:      out.kind,
			Reason:    out.reason,
			Diff:      out.diff,
			Outcome:   report.Pass,
		}
		if out.kind != KindNone {
			res.Outcome = report.Fail
		}
		if res.Failed() || e.SaveAll {
			res.Source = out.source
		}
		return res, true
	}
}

func attemptLabel(k ErrorKind) string {
	switch k {
	case KindNone:
		return "pass"
	case kindCancelled:
		return "cancelled"
	default:
		return string(k)
	}
}
