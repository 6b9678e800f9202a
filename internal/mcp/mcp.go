// Package mcp provides the difftest MCP server, exposing toolchain
// discovery, differential runs and failure inspection as tools.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kefir-c/difftest"
	"github.com/kefir-c/difftest/internal/config"
	"github.com/kefir-c/difftest/internal/logger"
	"github.com/kefir-c/difftest/internal/report"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu       sync.Mutex // guards cfg
	cfg      *config.Config
	runMu    sync.Mutex // one run at a time
	store    *report.LRUStore
	log      logger.Logger
	tempRoot string
}

// ServerOption configures the difftest MCP server.
type ServerOption func(*handler)

// WithLogger routes engine logs. The default discards them, since stdout
// belongs to the transport.
func WithLogger(l logger.Logger) ServerOption {
	return func(h *handler) { h.log = l }
}

// WithTempRoot sets the parent directory for scratch files.
func WithTempRoot(dir string) ServerOption {
	return func(h *handler) { h.tempRoot = dir }
}

// NewServer creates an MCP server with all difftest tools registered.
func NewServer(cfg *config.Config, store *report.LRUStore, opts ...ServerOption) *mcp.Server {
	h := &handler{cfg: cfg, store: store, log: logger.Discard()}
	for _, o := range opts {
		o(h)
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateConfigFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "difftest", Version: difftest.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "difftest_toolchain",
		Description: "Show the csmith, kefir and reference compiler binaries and flags a run would use.",
	}, h.toolchainHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "difftest_run",
		Description: `Run differential tests: generate random C programs with csmith, compile each with kefir and
the reference compiler, run both binaries and compare their output.

Failing programs are saved to the output directory. Results are stored for drill-down via difftest_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "difftest_inspect",
		Description: `Drill into results from a difftest_run.

Without an index, lists the failed tests of the run. With an index, shows the failure reason,
the output diff and the C source of that test.`,
	}, h.inspectHandler)

	return s
}

// snapshot returns a copy of the current configuration.
func (h *handler) snapshot() config.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.cfg
}

// updateConfigFromRoots queries the client for MCP roots and reloads the
// configuration from the first file root, if it has one.
func (h *handler) updateConfigFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}
	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}

	loaded, err := config.Load(u.Path)
	if err != nil || loaded.Path == "" {
		return
	}
	h.mu.Lock()
	h.cfg = loaded.Config
	h.mu.Unlock()
	h.log.Infof("Loaded %s", loaded.Path)
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
