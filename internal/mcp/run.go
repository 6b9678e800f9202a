package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kefir-c/difftest/internal/report"
	"github.com/kefir-c/difftest/internal/workflow"
)

type runParams struct {
	Tests          int     `json:"tests" jsonschema:"number of differential tests to run (at least 1)"`
	Jobs           int     `json:"jobs,omitempty" jsonschema:"parallel workers. Defaults to the configured job count."`
	Seed           *uint64 `json:"seed,omitempty" jsonschema:"fixed csmith seed. Only valid when tests is 1."`
	SaveAll        *bool   `json:"save_all,omitempty" jsonschema:"also save sources of passing tests. Defaults to the configured value."`
	Out            string  `json:"out,omitempty" jsonschema:"directory for saved test sources. Defaults to the configured output directory."`
	TimeoutSeconds int     `json:"timeout_seconds,omitempty" jsonschema:"execution timeout per test binary in seconds"`
	MaxAttempts    *int    `json:"max_attempts,omitempty" jsonschema:"give up on a test after this many timed-out attempts. 0 retries forever."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if params.Tests < 1 {
		return errorResult("tests must be at least 1")
	}
	if err := workflow.CheckSeed(params.Seed, params.Tests); err != nil {
		return errorResult(err.Error())
	}

	cfg := h.snapshot()
	if params.Jobs > 0 {
		cfg.Jobs = params.Jobs
	}
	if params.SaveAll != nil {
		cfg.SaveAll = *params.SaveAll
	}
	if params.Out != "" {
		cfg.Out = params.Out
	}
	if params.TimeoutSeconds > 0 {
		cfg.RawTimeout = (time.Duration(params.TimeoutSeconds) * time.Second).String()
	}
	if params.MaxAttempts != nil {
		cfg.MaxAttempts = *params.MaxAttempts
	}
	if cfg.Out == "" {
		return errorResult("out is required: pass it or set out in .difftest.yaml")
	}

	eng, err := workflow.NewEngine(&cfg, workflow.Setup{
		Seed:     params.Seed,
		TempRoot: h.tempRoot,
		Logger:   h.log,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("Cannot start run:\n%v", err))
	}

	h.runMu.Lock()
	defer h.runMu.Unlock()

	sum, runErr := eng.Run(ctx, params.Tests)
	rr := sum.Report(params.Tests, eng.Jobs, eng.SaveAll)
	if err := h.store.Save(rr); err != nil {
		h.log.Warnf("Storing report %s: %v", rr.ID, err)
	}
	if runErr != nil {
		return errorResult(fmt.Sprintf("Run %s aborted after %d of %d tests: %v", rr.ID, rr.Total, params.Tests, runErr))
	}
	return textResult(formatRun(rr))
}

func formatRun(rr *report.RunReport) string {
	var b strings.Builder
	if rr.Passed() {
		fmt.Fprintln(&b, "Status: PASS")
	} else {
		fmt.Fprintln(&b, "Status: FAIL")
	}
	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintln(&b, report.Headline(rr))
	fmt.Fprintln(&b)

	if rr.Passed() {
		fmt.Fprintln(&b, "kefir and the reference compiler agreed on every program.")
		return b.String()
	}
	fmt.Fprint(&b, report.FormatTable(rr, false))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Inspect with difftest_inspect(run_id=%q, index=<test>).\n", rr.ID)
	return b.String()
}
