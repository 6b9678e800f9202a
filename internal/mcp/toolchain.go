package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kefir-c/difftest/internal/workflow"
)

type toolchainParams struct{}

func (h *handler) toolchainHandler(ctx context.Context, req *sdkmcp.CallToolRequest, _ toolchainParams) (*sdkmcp.CallToolResult, any, error) {
	cfg := h.snapshot()
	tc, err := workflow.ResolveToolchain(&cfg, workflow.Setup{TempRoot: h.tempRoot})
	if err != nil {
		return errorResult(fmt.Sprintf("Toolchain is incomplete:\n%v", err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "csmith: %s\n", tc.Generator.Path())
	fmt.Fprintf(&b, "  command: %s\n", shellquote.Join(tc.Generator.Argv()...))
	fmt.Fprintf(&b, "  include: %s\n", tc.Generator.IncludeDir())
	fmt.Fprintf(&b, "kefir: %s\n", tc.KefirPath)
	fmt.Fprintf(&b, "  command: %s\n", shellquote.Join(tc.Kefir.Argv("<out>")...))
	fmt.Fprintf(&b, "reference: %s\n", tc.CCPath)
	fmt.Fprintf(&b, "  command: %s\n", shellquote.Join(tc.Reference.Argv("<in.c>", "<out>")...))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Timeout: %s\n", cfg.Timeout())
	fmt.Fprintf(&b, "Jobs: %d\n", cfg.JobCount())
	if cfg.Out != "" {
		fmt.Fprintf(&b, "Output: %s\n", cfg.Out)
	}
	if cfg.MaxAttempts > 0 {
		fmt.Fprintf(&b, "Max attempts: %d\n", cfg.MaxAttempts)
	}
	return textResult(b.String())
}
