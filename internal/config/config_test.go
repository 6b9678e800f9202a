package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FromDirectory(t *testing.T) {
	dir := t.TempDir()
	data := "version: 1\ntimeout: 10s\njobs: 4\ncsmith:\n  path: /opt/csmith/bin/csmith\nkefir:\n  path: ./bin/kefir\n  flags: \"-g\"\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Path != filepath.Join(dir, FileName) {
		t.Errorf("Path = %q, want %q", res.Path, filepath.Join(dir, FileName))
	}
	if res.Config.Version != 1 {
		t.Errorf("Config.Version = %d, want 1", res.Config.Version)
	}
	if got := res.Config.Timeout(); got != 10*time.Second {
		t.Errorf("Timeout() = %v, want 10s", got)
	}
	if got := res.Config.JobCount(); got != 4 {
		t.Errorf("JobCount() = %d, want 4", got)
	}
	if res.Config.Csmith.Path != "/opt/csmith/bin/csmith" {
		t.Errorf("Csmith.Path = %q", res.Config.Csmith.Path)
	}
	if res.Config.Kefir.Flags != "-g" {
		t.Errorf("Kefir.Flags = %q, want -g", res.Config.Kefir.Flags)
	}
}

func TestLoad_FromSubdirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("version: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sub := filepath.Join(root, "build", "tests")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Config.Version != 2 {
		t.Errorf("Config.Version = %d, want 2", res.Config.Version)
	}
}

func TestLoad_NoFile(t *testing.T) {
	dir := t.TempDir()

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Path != "" {
		t.Errorf("Path = %q, want empty", res.Path)
	}
	if res.Config.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", res.Config.Timeout(), DefaultTimeout)
	}
	if res.Config.CCPath() != "cc" {
		t.Errorf("CCPath() = %q, want cc", res.Config.CCPath())
	}
	if res.Config.JobCount() != 1 {
		t.Errorf("JobCount() = %d, want 1", res.Config.JobCount())
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("jobs: [1, 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTimeout_InvalidFallsBack(t *testing.T) {
	c := &Config{RawTimeout: "soon"}
	if got := c.Timeout(); got != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", got, DefaultTimeout)
	}
}

func TestValidate(t *testing.T) {
	c := &Config{RawTimeout: "-1s", MaxAttempts: -2}
	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"csmith path", "kefir path", "max_attempts", "invalid timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want to mention %q", err, want)
		}
	}

	ok := &Config{Csmith: CsmithConfig{Path: "csmith"}, Kefir: ToolConfig{Path: "kefir"}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
