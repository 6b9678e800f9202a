// Package cmd implements the difftest command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kefir-c/difftest"
	"github.com/kefir-c/difftest/internal/config"
	"github.com/kefir-c/difftest/internal/logger"
	"github.com/kefir-c/difftest/internal/metrics"
	"github.com/kefir-c/difftest/internal/report"
	"github.com/kefir-c/difftest/internal/workflow"
)

var (
	// ErrInterrupted is returned when a run is stopped by a signal.
	ErrInterrupted = errors.New("interrupted")

	// ErrTestsFailed is returned when at least one test failed.
	ErrTestsFailed = errors.New("differential tests failed")
)

// NewRootCommand creates the difftest command. Without a subcommand it
// runs the differential-testing harness.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "difftest",
		Short: "Differential testing of the kefir C compiler",
		Long: `difftest generates random C programs with csmith, compiles each with kefir
and a reference compiler, runs both binaries and compares their output.

Programs whose outputs differ, or that fail to generate, compile or run,
are saved to the output directory as {timestamp}_{index}_fail.c.
Settings are read from .difftest.yaml when present; flags take precedence.`,
		Version:       difftest.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runHarness,
	}

	f := cmd.Flags()
	f.String("csmith", "", "path to the csmith executable (required)")
	f.String("kefir", "", "path to the compiler under test (required)")
	f.String("cc", config.DefaultCC, "reference compiler")
	f.Int("timeout", int(config.DefaultTimeout/time.Second), "execution timeout per test binary in `SECONDS`")
	f.Int("tests", 0, "number of tests to run (required)")
	f.Int("jobs", config.DefaultJobs, "number of parallel workers")
	f.String("out", "", "output `DIR` for saved test programs (required)")
	f.Uint64("seed", 0, "fixed csmith seed; only valid with --tests 1")
	f.Bool("save-all", false, "also save programs of passing tests")
	f.String("config", "", "configuration `FILE` (default: "+config.FileName+" found upward from the working directory)")
	f.Int("max-attempts", 0, "fail a test after this many timed-out attempts; 0 retries forever")
	f.String("log-level", config.DefaultLogLevel, "log level: trace, debug, info, warn or error")
	f.String("metrics-addr", "", "serve Prometheus metrics on `HOST:PORT`")

	cmd.AddCommand(NewCompdbCommand())
	cmd.AddCommand(NewMCPCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

func runHarness(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()

	cfg, cfgPath, err := loadConfig(f)
	if err != nil {
		return err
	}
	if err := applyFlags(f, cfg); err != nil {
		return err
	}

	if !f.Changed("tests") {
		return errors.New("--tests is required")
	}
	tests, _ := f.GetInt("tests")
	if tests < 1 {
		return fmt.Errorf("--tests must be at least 1, got %d", tests)
	}
	var seed *uint64
	if f.Changed("seed") {
		s, _ := f.GetUint64("seed")
		seed = &s
	}
	if err := workflow.CheckSeed(seed, tests); err != nil {
		return err
	}
	if cfg.Out == "" {
		return errors.New("--out is required")
	}
	if !logger.ValidLevel(cfg.Level()) {
		return fmt.Errorf("invalid log level %q", cfg.Level())
	}

	stderr := cmd.ErrOrStderr()
	log := logger.NewConsoleLogger(stderr, cfg.Level())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	eng, err := workflow.NewEngine(cfg, workflow.Setup{
		Seed:    seed,
		Logger:  log,
		Metrics: metrics.New(reg),
	})
	if err != nil {
		return err
	}
	eng.Progress = stderr

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				log.Errorf("Metrics server: %v", err)
			}
		}()
	}

	printHeader(log, cfg, cfgPath, tests, seed)

	sum, err := eng.Run(ctx, tests)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return ErrInterrupted
		}
		return fmt.Errorf("run aborted after %d of %d tests: %w", sum.Total, tests, err)
	}

	rr := sum.Report(tests, eng.Jobs, eng.SaveAll)
	if !rr.Passed() {
		table := report.FormatTable(rr, logger.IsTerminal(stderr))
		fmt.Fprintln(stderr, strings.TrimRight(table, "\n"))
		return fmt.Errorf("%w: %s", ErrTestsFailed, report.Headline(rr))
	}
	log.Infof("%s", report.Headline(rr))
	return nil
}

// loadConfig reads --config, or discovers the config file from the
// working directory.
func loadConfig(f *pflag.FlagSet) (*config.Config, string, error) {
	if path, _ := f.GetString("config"); path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("determining working directory: %w", err)
	}
	loaded, err := config.Load(wd)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return loaded.Config, loaded.Path, nil
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(f *pflag.FlagSet, cfg *config.Config) error {
	if f.Changed("csmith") {
		cfg.Csmith.Path, _ = f.GetString("csmith")
	}
	if f.Changed("kefir") {
		cfg.Kefir.Path, _ = f.GetString("kefir")
	}
	if f.Changed("cc") {
		cfg.CC.Path, _ = f.GetString("cc")
	}
	if f.Changed("timeout") {
		secs, _ := f.GetInt("timeout")
		if secs < 1 {
			return fmt.Errorf("--timeout must be at least 1 second, got %d", secs)
		}
		cfg.RawTimeout = (time.Duration(secs) * time.Second).String()
	}
	if f.Changed("jobs") {
		jobs, _ := f.GetInt("jobs")
		if jobs < 1 {
			return fmt.Errorf("--jobs must be at least 1, got %d", jobs)
		}
		cfg.Jobs = jobs
	}
	if f.Changed("out") {
		cfg.Out, _ = f.GetString("out")
	}
	if f.Changed("save-all") {
		cfg.SaveAll, _ = f.GetBool("save-all")
	}
	if f.Changed("max-attempts") {
		cfg.MaxAttempts, _ = f.GetInt("max-attempts")
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = f.GetString("metrics-addr")
	}
	return nil
}

func printHeader(log logger.Logger, cfg *config.Config, cfgPath string, tests int, seed *uint64) {
	if cfgPath != "" {
		log.Infof("Config: %s", cfgPath)
	}
	log.Infof("Csmith: %s", cfg.Csmith.Path)
	log.Infof("Kefir: %s", cfg.Kefir.Path)
	log.Infof("Reference compiler: %s", cfg.CCPath())
	log.Infof("Timeout: %s", cfg.Timeout())
	log.Infof("Tests: %d", tests)
	log.Infof("Jobs: %d", cfg.JobCount())
	if seed != nil {
		log.Infof("Seed: %d", *seed)
	}
	if cfg.MaxAttempts > 0 {
		log.Infof("Max attempts: %d", cfg.MaxAttempts)
	}
	log.Infof("Temporary directory: %s", os.TempDir())
	log.Infof("Output directory: %s", cfg.Out)
	log.Infof("Save all: %t", cfg.SaveAll)
}
