package runstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadforge/loadforge/pkg/api"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPersistRunningThenGetFindsIt(t *testing.T) {
	s := newStore(t)
	rec := &Record{RunID: "run-1", TargetURL: "http://example.test", StartedAt: time.Now()}
	require.NoError(t, s.PersistRunning(rec))

	got, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
}

func TestCompleteMovesRunOutOfRunningPhase(t *testing.T) {
	s := newStore(t)
	rec := &Record{RunID: "run-2", StartedAt: time.Now()}
	require.NoError(t, s.PersistRunning(rec))

	rec.Status = api.StatusOK
	rec.ExitCode = 0
	rec.EndedAt = time.Now()
	require.NoError(t, s.Complete(rec))

	got, err := s.Get("run-2")
	require.NoError(t, err)
	assert.Equal(t, api.StatusOK, got.Status)
	assert.Equal(t, 0, got.ExitCode)
}

func TestGetUnknownRunReturnsNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Get("does-not-exist")
	assert.Equal(t, ErrNotFound, err)
}

func TestListCompletedOrdersByStartTimeWithinWindow(t *testing.T) {
	s := newStore(t)
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		rec := &Record{RunID: id, StartedAt: base.Add(time.Duration(i) * time.Minute), Status: api.StatusOK}
		require.NoError(t, s.PersistRunning(rec))
		require.NoError(t, s.Complete(rec))
	}

	records, err := s.ListCompleted(base.Add(-time.Minute), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "run-a", records[0].RunID)
	assert.Equal(t, "run-c", records[2].RunID)
}

func TestListCompletedExcludesOutsideWindow(t *testing.T) {
	s := newStore(t)
	now := time.Now()
	old := &Record{RunID: "old-run", StartedAt: now.Add(-48 * time.Hour), Status: api.StatusOK}
	recent := &Record{RunID: "recent-run", StartedAt: now, Status: api.StatusOK}
	require.NoError(t, s.PersistRunning(old))
	require.NoError(t, s.Complete(old))
	require.NoError(t, s.PersistRunning(recent))
	require.NoError(t, s.Complete(recent))

	records, err := s.ListCompleted(now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "recent-run", records[0].RunID)
}
