package mcp

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kefir-c/difftest/internal/report"
)

// maxSourceBytes caps the program source echoed back by difftest_inspect.
const maxSourceBytes = 64 << 10

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from a difftest_run result"`
	Index *int   `json:"index,omitempty" jsonschema:"test index to inspect. Omit to list all failures of the run."`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	rr, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	if params.Index == nil {
		return textResult(formatRun(rr))
	}

	f, err := rr.Failure(*params.Index)
	if err != nil {
		return textResult(fmt.Sprintf("Test %d passed in run %s (or was not part of it).", *params.Index, rr.ID))
	}
	return textResult(formatFailure(rr, f))
}

func formatFailure(rr *report.RunReport, f *report.Failure) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintf(&b, "Test %d: FAIL [%s] after %d attempt(s) on worker %d\n", f.Index, f.Kind, f.Attempts, f.Worker)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Reason:")
	for _, line := range strings.Split(strings.TrimRight(f.Reason, "\n"), "\n") {
		fmt.Fprintf(&b, "    %s\n", line)
	}

	if f.Diff != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Output diff:")
		fmt.Fprint(&b, f.Diff)
		if !strings.HasSuffix(f.Diff, "\n") {
			fmt.Fprintln(&b)
		}
	}

	if f.Artifact == "" {
		return b.String()
	}
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Source: %s\n", f.Artifact)
	data, err := os.ReadFile(f.Artifact)
	switch {
	case err != nil:
		fmt.Fprintf(&b, "(unreadable: %v)\n", err)
	case len(data) == 0:
		fmt.Fprintln(&b, "(empty: the program was never generated)")
	case len(data) > maxSourceBytes:
		fmt.Fprintf(&b, "(%s, showing the first %s)\n", humanize.Bytes(uint64(len(data))), humanize.Bytes(maxSourceBytes))
		b.Write(data[:maxSourceBytes])
		fmt.Fprintln(&b)
	default:
		b.Write(data)
	}
	return b.String()
}
