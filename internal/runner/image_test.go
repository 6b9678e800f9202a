package runner

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImageRunner(t *testing.T) (*ImageRunner, string) {
	t.Helper()
	root := t.TempDir()
	return &ImageRunner{Runner: &Runner{MaxOutput: 1 << 20}, TempRoot: root}, root
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files left behind in %s", dir)
}

func TestImageRunner_Completed(t *testing.T) {
	ir, root := newImageRunner(t)

	image := []byte("#!/bin/sh\necho 'checksum = 1A2B'\necho noise >&2\n")
	out, err := ir.Run(context.Background(), image, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, out.TimedOut)
	assert.Equal(t, "checksum = 1A2B\n", string(out.Stdout))

	assertEmptyDir(t, root)
}

func TestImageRunner_TimedOut(t *testing.T) {
	ir, root := newImageRunner(t)

	image := []byte("#!/bin/sh\nwhile :; do :; done\n")
	out, err := ir.Run(context.Background(), image, 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.Nil(t, out.Stdout)

	assertEmptyDir(t, root)
}

func TestImageRunner_NonZeroExit(t *testing.T) {
	ir, root := newImageRunner(t)

	image := []byte("#!/bin/sh\necho partial\nexit 7\n")
	_, err := ir.Run(context.Background(), image, 5*time.Second)
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 7, exitErr.Code)

	assertEmptyDir(t, root)
}

func TestImageRunner_NotExecutableFormat(t *testing.T) {
	ir, root := newImageRunner(t)

	_, err := ir.Run(context.Background(), []byte{0x00, 0x01, 0x02}, 5*time.Second)
	assert.Error(t, err)

	assertEmptyDir(t, root)
}

func TestImageRunner_Cancelled(t *testing.T) {
	ir, root := newImageRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ir.Run(ctx, []byte("#!/bin/sh\nsleep 10\n"), 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	assertEmptyDir(t, root)
}
