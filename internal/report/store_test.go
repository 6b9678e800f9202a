package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore counts backing loads.
type memStore struct {
	reports map[string]*RunReport
	loads   int
}

func newMemStore() *memStore { return &memStore{reports: map[string]*RunReport{}} }

func (m *memStore) Save(r *RunReport) error {
	m.reports[r.ID] = r
	return nil
}

func (m *memStore) Load(id string) (*RunReport, error) {
	m.loads++
	r, ok := m.reports[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func sampleReport(id string) *RunReport {
	return &RunReport{
		ID:        id,
		Stamp:     1700000000000,
		StartedAt: time.UnixMilli(1700000000000),
		Duration:  1500 * time.Millisecond,
		Tests:     3,
		Jobs:      2,
		Total:     3,
		Failed:    1,
		Retries:   2,
		Failures: []Failure{{
			Index:    1,
			Attempts: 3,
			Kind:     "mismatch",
			Reason:   "output mismatch",
			Diff:     "-a\n+b\n",
			Artifact: "/out/1700000000000_1_fail.c",
		}},
	}
}

func TestDiskStore_RoundTrip(t *testing.T) {
	s := NewDiskStore()
	t.Cleanup(func() { s.Close() })

	want := sampleReport("run-1")
	require.NoError(t, s.Save(want))

	got, err := s.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, want.Failures, got.Failures)
	assert.Equal(t, want.Duration, got.Duration)
	assert.False(t, got.Passed())
}

func TestDiskStore_LoadMissing(t *testing.T) {
	s := NewDiskStore()
	t.Cleanup(func() { s.Close() })

	_, err := s.Load("nope")
	assert.Error(t, err)
	_, err = s.Load("../etc/passwd")
	assert.Error(t, err)
}

func TestLRUStore_EvictsOldest(t *testing.T) {
	back := newMemStore()
	s := NewLRUStore(2, back)

	require.NoError(t, s.Save(sampleReport("a")))
	require.NoError(t, s.Save(sampleReport("b")))
	require.NoError(t, s.Save(sampleReport("c")))

	_, err := s.Load("b")
	require.NoError(t, err)
	assert.Equal(t, 0, back.loads, "b should be cached")

	_, err = s.Load("a")
	require.NoError(t, err)
	assert.Equal(t, 1, back.loads, "a should have been evicted")

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, "a", latest.ID)
}

func TestLRUStore_LatestEmpty(t *testing.T) {
	_, ok := NewLRUStore(1, newMemStore()).Latest()
	assert.False(t, ok)
}

func TestRunReport_Failure(t *testing.T) {
	r := sampleReport("x")
	f, err := r.Failure(1)
	require.NoError(t, err)
	assert.Equal(t, "mismatch", f.Kind)

	_, err = r.Failure(0)
	assert.Error(t, err)
}
