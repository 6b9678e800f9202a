package workflow

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/kefir-c/difftest/internal/compiler"
	"github.com/kefir-c/difftest/internal/config"
	"github.com/kefir-c/difftest/internal/csmith"
	"github.com/kefir-c/difftest/internal/logger"
	"github.com/kefir-c/difftest/internal/report"
	"github.com/kefir-c/difftest/internal/runner"
)

// ErrSeedWithManyTests rejects a fixed seed for a run of more than one
// test: every test would generate the same program.
var ErrSeedWithManyTests = errors.New("cannot have more than one test with predefined seed")

// CheckSeed validates a seed against the number of tests.
func CheckSeed(seed *uint64, tests int) error {
	if seed != nil && tests > 1 {
		return ErrSeedWithManyTests
	}
	return nil
}

// Setup carries run settings that do not live in the config file.
type Setup struct {
	Seed     *uint64 // fixed csmith seed
	TempRoot string  // parent of scratch directories; "" = os.TempDir
	Logger   logger.Logger
	Metrics  Recorder
}

// Toolchain is the resolved set of external tools for a run.
type Toolchain struct {
	Generator *csmith.Generator
	Kefir     *compiler.Kefir
	Reference *compiler.Reference
	CCPath    string
	KefirPath string
}

// ResolveToolchain locates csmith and both compilers. Missing executables
// are reported together.
func ResolveToolchain(cfg *config.Config, s Setup) (*Toolchain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var errs []error
	kefirPath, err := exec.LookPath(cfg.Kefir.Path)
	if err != nil {
		errs = append(errs, fmt.Errorf("kefir executable %q: %w", cfg.Kefir.Path, err))
	}
	ccPath, err := exec.LookPath(cfg.CCPath())
	if err != nil {
		errs = append(errs, fmt.Errorf("reference compiler %q: %w", cfg.CCPath(), err))
	}
	csmithArgs, err := csmith.ParseArgs(cfg.Csmith.Args)
	if err != nil {
		errs = append(errs, fmt.Errorf("csmith args: %w", err))
	}
	kefirFlags, err := csmith.ParseArgs(cfg.Kefir.Flags)
	if err != nil {
		errs = append(errs, fmt.Errorf("kefir flags: %w", err))
	}
	ccFlags, err := csmith.ParseArgs(cfg.CC.Flags)
	if err != nil {
		errs = append(errs, fmt.Errorf("cc flags: %w", err))
	}

	opts := []csmith.Option{csmith.WithArgs(csmithArgs)}
	if cfg.Csmith.IncludeDir != "" {
		opts = append(opts, csmith.WithIncludeDir(cfg.Csmith.IncludeDir))
	}
	if s.Seed != nil {
		opts = append(opts, csmith.WithSeed(*s.Seed))
	}
	// Generated programs must never be truncated.
	gen, err := csmith.New(cfg.Csmith.Path, &runner.Runner{}, opts...)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	compileRunner := &runner.Runner{MaxOutput: cfg.MaxOutputBytes()}
	return &Toolchain{
		Generator: gen,
		Kefir: compiler.NewKefir(compiler.Options{
			Path:       kefirPath,
			IncludeDir: gen.IncludeDir(),
			Flags:      kefirFlags,
			TempRoot:   s.TempRoot,
			Runner:     compileRunner,
		}),
		Reference: compiler.NewReference(compiler.Options{
			Path:       ccPath,
			IncludeDir: gen.IncludeDir(),
			Flags:      ccFlags,
			TempRoot:   s.TempRoot,
			Runner:     compileRunner,
		}),
		CCPath:    ccPath,
		KefirPath: kefirPath,
	}, nil
}

// NewEngine wires an Engine from configuration. The output directory is
// created if it does not exist.
func NewEngine(cfg *config.Config, s Setup) (*Engine, error) {
	if cfg.Out == "" {
		return nil, errors.New("output directory is required")
	}
	tc, err := ResolveToolchain(cfg, s)
	if err != nil {
		return nil, err
	}
	artifacts, err := report.NewArtifactWriter(cfg.Out)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Source:    tc.Generator,
		Kefir:     tc.Kefir,
		Reference: tc.Reference,
		Executor: &runner.ImageRunner{
			Runner:   &runner.Runner{MaxOutput: cfg.MaxOutputBytes()},
			TempRoot: s.TempRoot,
		},
		Artifacts:   artifacts,
		Logger:      s.Logger,
		Metrics:     s.Metrics,
		Jobs:        cfg.JobCount(),
		Timeout:     cfg.Timeout(),
		MaxAttempts: cfg.MaxAttempts,
		SaveAll:     cfg.SaveAll,
		FixedSeed:   s.Seed != nil,
	}, nil
}
