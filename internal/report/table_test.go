package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadline(t *testing.T) {
	r := sampleReport("run")
	r.Total = 12000
	assert.Equal(t, "FAIL: 12,000 tests, 1 failed, 2 retried in 1.5s", Headline(r))

	r.Failed = 0
	assert.True(t, strings.HasPrefix(Headline(r), "PASS:"))
}

func TestFormatTable_Plain(t *testing.T) {
	out := FormatTable(sampleReport("run-7"), false)
	assert.Contains(t, out, "1700000000000_1_fail.c")
	assert.Contains(t, out, "output mismatch")
	assert.NotContains(t, out, "\x1b[", "plain tables must not contain escape sequences")
}
