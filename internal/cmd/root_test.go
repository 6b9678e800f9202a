package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kefir-c/difftest"
	"github.com/kefir-c/difftest/internal/workflow"
)

// The fake toolchain turns csmith output into shell scripts: csmith emits
// shell commands and both compilers prepend a shebang.
const (
	fakeCsmith = `#!/bin/sh
echo 'echo "checksum = 5EED"'
`
	compilerPrologue = `#!/bin/sh
out=
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    *) last="$1"; shift ;;
  esac
done
`
	fakeKefir = compilerPrologue + `{ echo '#!/bin/sh'; cat; } > "$out"
`
	fakeBrokenKefir = compilerPrologue + `{ echo '#!/bin/sh'; cat; echo 'echo extra'; } > "$out"
`
	fakeCC = compilerPrologue + `{ echo '#!/bin/sh'; cat "$last"; } > "$out"
`
)

// syncBuffer serialises writes from the logger and the progress line.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type toolchain struct {
	csmith, kefir, cc string
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func fakeToolchain(t *testing.T, kefir string) toolchain {
	t.Helper()
	bin := t.TempDir()
	return toolchain{
		csmith: writeScript(t, bin, "csmith", fakeCsmith),
		kefir:  writeScript(t, bin, "kefir", kefir),
		cc:     writeScript(t, bin, "cc", fakeCC),
	}
}

// emptyConfig keeps tests independent of any .difftest.yaml above the
// working directory.
func emptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "difftest.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func execute(t *testing.T, args ...string) (stdout string, stderr *syncBuffer, err error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	stderr = &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), stderr, err
}

func TestRootCommand_Help(t *testing.T) {
	out, _, err := execute(t, "--help")
	require.NoError(t, err)

	for _, flag := range []string{"--csmith", "--kefir", "--cc", "--timeout", "--tests", "--jobs", "--out", "--seed", "--save-all", "--config", "--max-attempts"} {
		assert.Contains(t, out, flag)
	}
	for _, sub := range []string{"compdb", "mcp", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCommand_SeedWithManyTestsCreatesNothing(t *testing.T) {
	tc := fakeToolchain(t, fakeKefir)
	out := filepath.Join(t.TempDir(), "out")

	_, _, err := execute(t,
		"--config", emptyConfig(t),
		"--csmith", tc.csmith, "--kefir", tc.kefir, "--cc", tc.cc,
		"--tests", "2", "--seed", "42", "--out", out,
	)
	require.ErrorIs(t, err, workflow.ErrSeedWithManyTests)
	assert.NoDirExists(t, out)
}

func TestRootCommand_TestsRequired(t *testing.T) {
	tc := fakeToolchain(t, fakeKefir)

	_, _, err := execute(t,
		"--config", emptyConfig(t),
		"--csmith", tc.csmith, "--kefir", tc.kefir, "--out", t.TempDir(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tests is required")
}

func TestRootCommand_OutRequired(t *testing.T) {
	tc := fakeToolchain(t, fakeKefir)

	_, _, err := execute(t,
		"--config", emptyConfig(t),
		"--csmith", tc.csmith, "--kefir", tc.kefir, "--tests", "1",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--out is required")
}

func TestRootCommand_MissingExecutables(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")

	_, _, err := execute(t,
		"--config", emptyConfig(t),
		"--csmith", "/nonexistent/csmith", "--kefir", "/nonexistent/kefir", "--cc", "/nonexistent/cc",
		"--tests", "1", "--out", out,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kefir executable")
	assert.Contains(t, err.Error(), "reference compiler")
	assert.NoDirExists(t, out)
}

func TestRootCommand_Passing(t *testing.T) {
	tc := fakeToolchain(t, fakeKefir)
	out := filepath.Join(t.TempDir(), "out")

	_, stderr, err := execute(t,
		"--config", emptyConfig(t),
		"--csmith", tc.csmith, "--kefir", tc.kefir, "--cc", tc.cc,
		"--tests", "3", "--jobs", "2", "--out", out,
	)
	require.NoError(t, err, stderr.String())

	log := stderr.String()
	assert.Contains(t, log, "total=3; failed=0")
	assert.Contains(t, log, "PASS: 3 tests")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRootCommand_SaveAll(t *testing.T) {
	tc := fakeToolchain(t, fakeKefir)
	out := filepath.Join(t.TempDir(), "out")

	_, stderr, err := execute(t,
		"--config", emptyConfig(t),
		"--csmith", tc.csmith, "--kefir", tc.kefir, "--cc", tc.cc,
		"--tests", "3", "--out", out, "--save-all",
	)
	require.NoError(t, err, stderr.String())

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "_fail")
	}
}

func TestRootCommand_Failing(t *testing.T) {
	tc := fakeToolchain(t, fakeBrokenKefir)
	out := filepath.Join(t.TempDir(), "out")

	_, stderr, err := execute(t,
		"--config", emptyConfig(t),
		"--csmith", tc.csmith, "--kefir", tc.kefir, "--cc", tc.cc,
		"--tests", "2", "--out", out,
	)
	require.ErrorIs(t, err, ErrTestsFailed)
	assert.Contains(t, stderr.String(), "total=2; failed=2")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, strings.HasSuffix(e.Name(), "_fail.c"), e.Name())
	}
}

func TestRootCommand_ConfigFile(t *testing.T) {
	tc := fakeToolchain(t, fakeKefir)
	out := filepath.Join(t.TempDir(), "out")

	cfgPath := filepath.Join(t.TempDir(), "difftest.yaml")
	cfg := "csmith: {path: " + tc.csmith + "}\n" +
		"kefir: {path: " + tc.kefir + "}\n" +
		"cc: {path: /nonexistent/cc}\n" +
		"out: " + out + "\n" +
		"save_all: true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	// The flag wins over the file's cc.
	_, stderr, err := execute(t, "--config", cfgPath, "--cc", tc.cc, "--tests", "1")
	require.NoError(t, err, stderr.String())

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRootCommand_InvalidTimeout(t *testing.T) {
	_, _, err := execute(t, "--config", emptyConfig(t), "--timeout", "0", "--tests", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--timeout")
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, difftest.Version+"\n", out)
}
