// Package config loads and validates the optional .difftest.yaml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file looked up by Load.
const FileName = ".difftest.yaml"

// Default values for harness configuration.
const (
	DefaultTimeout   = 5 * time.Second
	DefaultJobs      = 1
	DefaultMaxOutput = 1 << 20 // 1 MB
	DefaultCC        = "cc"
	DefaultLogLevel  = "info"
)

// Config holds the parsed .difftest.yaml configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int          `yaml:"version"`
	RawTimeout   string       `yaml:"timeout"` // e.g. "5s", "1m"
	Jobs         int          `yaml:"jobs"`
	Out          string       `yaml:"out"`
	SaveAll      bool         `yaml:"save_all"`
	MaxAttempts  int          `yaml:"max_attempts"` // 0 = retry timeouts forever
	RawMaxOutput int          `yaml:"max_output"`   // bytes
	LogLevel     string       `yaml:"log_level"`
	MetricsAddr  string       `yaml:"metrics_addr"`
	Csmith       CsmithConfig `yaml:"csmith"`
	Kefir        ToolConfig   `yaml:"kefir"`
	CC           ToolConfig   `yaml:"cc"`
}

// CsmithConfig controls how random programs are generated.
type CsmithConfig struct {
	Path       string `yaml:"path"`
	Args       string `yaml:"args"`        // extra flags, shell-quoted (e.g. "--max-funcs 4")
	IncludeDir string `yaml:"include_dir"` // default: <csmith dir>/../include
}

// ToolConfig controls how a compiler is invoked.
type ToolConfig struct {
	Path  string `yaml:"path"`
	Flags string `yaml:"flags"` // extra flags, shell-quoted
}

// Timeout returns the configured execution timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// JobCount returns the configured worker count or the default.
func (c *Config) JobCount() int {
	if c.Jobs > 0 {
		return c.Jobs
	}
	return DefaultJobs
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// CCPath returns the reference compiler, falling back to "cc".
func (c *Config) CCPath() string {
	if c.CC.Path != "" {
		return c.CC.Path
	}
	return DefaultCC
}

// Level returns the configured log level, falling back to info.
func (c *Config) Level() string {
	if c.LogLevel != "" {
		return c.LogLevel
	}
	return DefaultLogLevel
}

// Validate reports configuration errors that would make a run impossible.
func (c *Config) Validate() error {
	var errs []error
	if c.Csmith.Path == "" {
		errs = append(errs, errors.New("csmith path is required"))
	}
	if c.Kefir.Path == "" {
		errs = append(errs, errors.New("kefir path is required"))
	}
	if c.Jobs < 0 {
		errs = append(errs, fmt.Errorf("jobs must be positive, got %d", c.Jobs))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_attempts must not be negative, got %d", c.MaxAttempts))
	}
	if c.RawTimeout != "" {
		if d, err := time.ParseDuration(c.RawTimeout); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("invalid timeout %q", c.RawTimeout))
		}
	}
	return errors.Join(errs...)
}

// LoadResult holds the parsed config and the file it was read from.
type LoadResult struct {
	Config *Config
	Path   string // empty when no file was found
}

// Load discovers .difftest.yaml by walking upward from dir.
// If no file exists, a default Config is returned.
func Load(dir string) (*LoadResult, error) {
	path, err := findConfig(dir)
	if err != nil {
		return &LoadResult{Config: &Config{}}, nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, Path: path}, nil
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// findConfig walks upward from dir looking for a .difftest.yaml file.
func findConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
