package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"

	"github.com/kefir-c/difftest/internal/metrics"
	"github.com/kefir-c/difftest/internal/runner"
)

// kindCancelled marks an attempt abandoned because ctx was cancelled. It
// never reaches a TestResult.
const kindCancelled ErrorKind = "cancelled"

// attemptResult is the outcome of one generate, compile, run and compare
// pass. kind is KindNone for a passing comparison.
type attemptResult struct {
	source string
	kind   ErrorKind
	reason string
	diff   string
}

// attempt runs the pipeline once for index.
func (e *Engine) attempt(ctx context.Context, index int) attemptResult {
	began := time.Now()
	source, err := e.Source.Generate(ctx)
	e.metrics().ObserveStage(metrics.StageGenerate, time.Since(began))
	if err != nil {
		return e.stageFailure(ctx, index, "", "generating program", err)
	}

	if ctx.Err() != nil {
		return attemptResult{kind: kindCancelled}
	}
	kefirImage, refImage, err := e.compileBoth(ctx, source)
	if err != nil {
		return e.stageFailure(ctx, index, source, "compiling", err)
	}

	if ctx.Err() != nil {
		return attemptResult{kind: kindCancelled}
	}
	began = time.Now()
	kefirOut, err := e.Executor.Run(ctx, kefirImage, e.Timeout)
	if err != nil {
		return e.stageFailure(ctx, index, source, "running "+e.Kefir.Name()+" binary", err)
	}
	if kefirOut.TimedOut {
		e.metrics().ObserveStage(metrics.StageRun, time.Since(began))
		return attemptResult{source: source, kind: KindTimeout}
	}
	refOut, err := e.Executor.Run(ctx, refImage, e.Timeout)
	e.metrics().ObserveStage(metrics.StageRun, time.Since(began))
	if err != nil {
		return e.stageFailure(ctx, index, source, "running "+e.Reference.Name()+" binary", err)
	}
	if refOut.TimedOut {
		return attemptResult{source: source, kind: KindTimeout}
	}

	if overflowed := truncatedOutputs(e.Kefir.Name(), kefirOut, e.Reference.Name(), refOut); overflowed != "" {
		return attemptResult{
			source: source,
			kind:   KindOverflow,
			reason: fmt.Sprintf("output of the %s binary exceeds the capture limit; outputs cannot be compared", overflowed),
		}
	}
	if bytes.Equal(kefirOut.Stdout, refOut.Stdout) {
		return attemptResult{source: source}
	}
	return attemptResult{
		source: source,
		kind:   KindMismatch,
		reason: fmt.Sprintf("%s and %s outputs differ", e.Kefir.Name(), e.Reference.Name()),
		diff:   e.diff(kefirOut.Stdout, refOut.Stdout),
	}
}

// truncatedOutputs names the binaries whose stdout was cut at the capture
// limit, or returns "" when both outputs are complete.
func truncatedOutputs(kefir string, kefirOut runner.Outcome, ref string, refOut runner.Outcome) string {
	var names []string
	if kefirOut.Truncated {
		names = append(names, kefir)
	}
	if refOut.Truncated {
		names = append(names, ref)
	}
	return strings.Join(names, " and ")
}

// compileBoth compiles source with both compilers concurrently.
func (e *Engine) compileBoth(ctx context.Context, source string) (kefirImage, refImage []byte, err error) {
	began := time.Now()
	defer func() { e.metrics().ObserveStage(metrics.StageCompile, time.Since(began)) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(recovering(func() error {
		img, err := e.Kefir.Compile(gctx, source)
		if err != nil {
			return err
		}
		kefirImage = img
		return nil
	}))
	g.Go(recovering(func() error {
		img, err := e.Reference.Compile(gctx, source)
		if err != nil {
			return err
		}
		refImage = img
		return nil
	}))
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return kefirImage, refImage, nil
}

// recovering converts a panic in f into a *PanicError, since a panic on an
// errgroup goroutine cannot be recovered by the attempt.
func recovering(f func() error) func() error {
	return func() (err error) {
		var pc panics.Catcher
		pc.Try(func() { err = f() })
		if r := pc.Recovered(); r != nil {
			return &PanicError{Value: r.Value, Stack: r.Stack}
		}
		return err
	}
}

// stageFailure turns a stage error into a terminal attempt result, or a
// cancellation marker when ctx is done.
func (e *Engine) stageFailure(ctx context.Context, index int, source, stage string, err error) attemptResult {
	if ctx.Err() != nil {
		return attemptResult{kind: kindCancelled}
	}
	kind := Classify(err)
	var pe *PanicError
	if errors.As(err, &pe) {
		e.log().Errorf("Test %d: %s: %v\n%s", index, stage, err, pe.Stack)
	} else {
		e.log().Errorf("Test %d: %s: %v", index, stage, err)
	}
	return attemptResult{
		source: source,
		kind:   kind,
		reason: fmt.Sprintf("%s: %v", stage, err),
	}
}

func (e *Engine) diff(kefirOut, refOut []byte) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(refOut)),
		B:        difflib.SplitLines(string(kefirOut)),
		FromFile: e.Reference.Name(),
		ToFile:   e.Kefir.Name(),
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return text
}
