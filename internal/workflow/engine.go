// Package workflow runs differential tests: it drives a pool of workers
// through the generate, compile, run and compare pipeline and collects
// exactly one result per test index.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/kefir-c/difftest/internal/logger"
	"github.com/kefir-c/difftest/internal/report"
	"github.com/kefir-c/difftest/internal/runner"
)

// ProgramSource produces random C programs.
// Implemented by csmith.Generator.
type ProgramSource interface {
	Generate(ctx context.Context) (string, error)
}

// Compiler turns C source into an executable image.
// Implemented by compiler.Kefir and compiler.Reference.
type Compiler interface {
	Name() string
	Compile(ctx context.Context, source string) ([]byte, error)
}

// Executor runs an executable image under a wall-clock timeout.
// Implemented by runner.ImageRunner.
type Executor interface {
	Run(ctx context.Context, image []byte, timeout time.Duration) (runner.Outcome, error)
}

// ArtifactSink persists test program sources.
// Implemented by report.ArtifactWriter.
type ArtifactSink interface {
	Save(stamp int64, index int, outcome report.Outcome, source string) (string, error)
}

// Recorder receives pipeline metrics. Implemented by metrics.Metrics.
type Recorder interface {
	RecordTest(outcome string)
	RecordAttempt(result string)
	RecordRetry()
	ObserveStage(stage string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordTest(string)                  {}
func (nopRecorder) RecordAttempt(string)               {}
func (nopRecorder) RecordRetry()                       {}
func (nopRecorder) ObserveStage(string, time.Duration) {}

// Engine holds the collaborators and settings of a differential test run.
type Engine struct {
	Source    ProgramSource
	Kefir     Compiler
	Reference Compiler
	Executor  Executor
	Artifacts ArtifactSink
	Logger    logger.Logger
	Metrics   Recorder
	Progress  io.Writer // receives one progress line per collected result

	Jobs        int
	Timeout     time.Duration // per test program execution
	MaxAttempts int           // 0 = retry timed-out tests indefinitely
	SaveAll     bool
	FixedSeed   bool // every Generate call yields the same program

	Now func() time.Time
}

func (e *Engine) validate() error {
	var errs []error
	if e.Source == nil {
		errs = append(errs, errors.New("program source is required"))
	}
	if e.Kefir == nil || e.Reference == nil {
		errs = append(errs, errors.New("both compilers are required"))
	}
	if e.Executor == nil {
		errs = append(errs, errors.New("executor is required"))
	}
	if e.Artifacts == nil {
		errs = append(errs, errors.New("artifact sink is required"))
	}
	if e.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max attempts must not be negative, got %d", e.MaxAttempts))
	}
	return errors.Join(errs...)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) log() logger.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logger.Discard()
}

func (e *Engine) metrics() Recorder {
	if e.Metrics != nil {
		return e.Metrics
	}
	return nopRecorder{}
}

func (e *Engine) jobs() int {
	if e.Jobs < 1 {
		return 1
	}
	return e.Jobs
}

// workerExit is sent by every worker when its claim loop ends.
type workerExit struct {
	id        int
	recovered *panics.Recovered
}

// Run executes tests differential tests and blocks until every index in
// [0, tests) has a result, ctx is cancelled, or all workers have died.
// The returned summary is never nil; on error it covers the results
// collected so far.
func (e *Engine) Run(ctx context.Context, tests int) (*Summary, error) {
	started := e.now()
	sum := &Summary{
		RunID:      uuid.New().String(),
		Stamp:      started.UnixMilli(),
		StartedAt:  started,
		artifactOf: make(map[int]string),
	}
	if err := e.validate(); err != nil {
		return sum, err
	}
	if tests < 0 {
		return sum, fmt.Errorf("number of tests must not be negative, got %d", tests)
	}
	if tests == 0 {
		return sum, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := e.jobs()
	work := make(chan int)
	results := make(chan TestResult, tests)
	exits := make(chan workerExit, jobs)
	var retries atomic.Int64

	go feed(ctx, work, tests)

	p := pool.New().WithMaxGoroutines(jobs)
	for id := 0; id < jobs; id++ {
		p.Go(func() {
			var pc panics.Catcher
			pc.Try(func() { e.claimLoop(ctx, id, work, results, &retries) })
			exits <- workerExit{id: id, recovered: pc.Recovered()}
		})
	}

	err := e.collect(ctx, sum, tests, jobs, results, exits)

	cancel()
	p.Wait()

	sum.Retries = int(retries.Load())
	sum.Duration = e.now().Sub(started)
	return sum, err
}

// feed dispenses indices 0..n-1 in order, each exactly once.
func feed(ctx context.Context, work chan<- int, n int) {
	defer close(work)
	for i := 0; i < n; i++ {
		select {
		case work <- i:
		case <-ctx.Done():
			return
		}
	}
}

// collect drains results until tests distinct indices are accounted for.
func (e *Engine) collect(ctx context.Context, sum *Summary, tests, jobs int, results <-chan TestResult, exits <-chan workerExit) error {
	seen := make(map[int]bool, tests)
	live := jobs

	accept := func(res TestResult) {
		if seen[res.Index] {
			e.log().Warnf("Ignoring duplicate result for test %d from worker %d", res.Index, res.WorkerID)
			return
		}
		seen[res.Index] = true
		e.record(sum, res)
	}

	for len(seen) < tests {
		select {
		case res := <-results:
			accept(res)

		case exit := <-exits:
			live--
			if exit.recovered != nil {
				e.log().Errorf("Worker %d terminated: %v\n%s", exit.id, exit.recovered.Value, exit.recovered.Stack)
			}
			if live > 0 {
				continue
			}
			// Workers send results before reporting their exit, so
			// everything they produced is already buffered.
			for drained := false; !drained; {
				select {
				case res := <-results:
					accept(res)
				default:
					drained = true
				}
			}
			if len(seen) < tests {
				if err := ctx.Err(); err != nil {
					return err
				}
				return fmt.Errorf("%w: %d of %d tests missing", ErrWorkersExited, tests-len(seen), tests)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// record persists, counts and reports one result.
func (e *Engine) record(sum *Summary, res TestResult) {
	sum.Total++
	if res.Failed() {
		sum.Failed++
		sum.Failures = append(sum.Failures, res)
	}
	e.metrics().RecordTest(string(res.Outcome))

	if res.Failed() || e.SaveAll {
		if res.Failed() && res.Source == "" {
			e.log().Warnf("Test %d failed before a program was generated; its artifact is empty", res.Index)
		}
		path, err := e.Artifacts.Save(sum.Stamp, res.Index, res.Outcome, res.Source)
		if err != nil {
			e.log().Errorf("Saving test %d: %v", res.Index, err)
		} else {
			sum.Artifacts = append(sum.Artifacts, path)
			sum.artifactOf[res.Index] = path
		}
	}

	elapsed := res.Timestamp.Sub(sum.StartedAt)
	if res.Failed() {
		e.log().Errorf("Test %d failed at %.3fs after %d attempt(s) [%s]: %s",
			res.Index, elapsed.Seconds(), res.Attempts, res.Kind, res.Reason)
		if res.Diff != "" {
			e.log().Errorf("Test %d output diff:\n%s", res.Index, res.Diff)
		}
	}
	if e.Progress != nil {
		fmt.Fprintf(e.Progress, "[%12.3f] total=%d; failed=%d\n",
			float64(elapsed.Milliseconds())/1000, sum.Total, sum.Failed)
	}
}
