package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/kefir-c/difftest/internal/logger"
	dtmcp "github.com/kefir-c/difftest/internal/mcp"
	"github.com/kefir-c/difftest/internal/report"
)

// NewMCPCommand creates the mcp subcommand.
func NewMCPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server",
		Long: `mcp serves the difftest tools over the Model Context Protocol on stdio,
or over streamable HTTP with --http.`,
		Args: cobra.NoArgs,
		RunE: runMCP,
	}

	cmd.Flags().Bool("instructions", false, "print model instructions and exit")
	cmd.Flags().String("http", "", "start HTTP server on `ADDR` (e.g. :9090)")
	cmd.Flags().String("config", "", "configuration `FILE`")

	return cmd
}

func runMCP(cmd *cobra.Command, _ []string) error {
	if show, _ := cmd.Flags().GetBool("instructions"); show {
		fmt.Fprint(cmd.OutOrStdout(), dtmcp.Instructions)
		return nil
	}

	cfg, _, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	log := logger.NewConsoleLogger(cmd.ErrOrStderr(), cfg.Level())

	disk := report.NewDiskStore()
	defer func() {
		if err := disk.Close(); err != nil {
			log.Warnf("Removing stored reports: %v", err)
		}
	}()
	store := report.NewLRUStore(5, disk)

	server := dtmcp.NewServer(cfg, store, dtmcp.WithLogger(log))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr, _ := cmd.Flags().GetString("http"); addr != "" {
		return serveHTTP(ctx, server, addr, log)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, log logger.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Infof("Listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
