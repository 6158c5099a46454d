package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/context-pipeline/internal/monitoring"
)

func report(id string) *monitoring.RunReport {
	return &monitoring.RunReport{
		RunID:          id,
		Outcome:        monitoring.OutcomeCompleted,
		InputMessages:  3,
		OutputMessages: 2,
		Stages:         []monitoring.StageReport{{Name: "history_truncate", LatencyUs: 4}},
		Metadata:       map[string]any{"historyTruncated": true},
	}
}

func openStores(t *testing.T, ttl time.Duration) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "runs.db"), ttl)
	require.NoError(t, err)
	mem := NewMemoryStore(ttl)
	t.Cleanup(func() {
		sqlite.Close()
		mem.Close()
	})
	return map[string]Store{"memory": mem, "sqlite": sqlite}
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, report("run-1")))

			got, ok, err := s.Get(ctx, "run-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "run-1", got.RunID)
			assert.Equal(t, 2, got.OutputMessages)
			assert.Equal(t, []monitoring.StageReport{{Name: "history_truncate", LatencyUs: 4}}, got.Stages)
			assert.Equal(t, true, got.Metadata["historyTruncated"])

			_, ok, err = s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_PutRejectsMissingRunID(t *testing.T) {
	for name, s := range openStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Put(context.Background(), &monitoring.RunReport{}))
			assert.Error(t, s.Put(context.Background(), nil))
		})
	}
}

func TestStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, report("run-1")))
			r := report("run-1")
			r.Outcome = monitoring.OutcomeAborted
			require.NoError(t, s.Put(ctx, r))

			got, ok, err := s.Get(ctx, "run-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, monitoring.OutcomeAborted, got.Outcome)
		})
	}
}

func TestStore_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			for i := range 4 {
				require.NoError(t, s.Put(ctx, report(fmt.Sprintf("run-%d", i))))
				time.Sleep(2 * time.Millisecond)
			}

			got, err := s.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "run-3", got[0].RunID)
			assert.Equal(t, "run-2", got[1].RunID)

			all, err := s.Recent(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, all, 4)
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	defer s.Close()

	require.NoError(t, s.Put(ctx, report("run-1")))

	s.mu.Lock()
	e := s.data["run-1"]
	e.expiresAt = time.Now().Add(-time.Second)
	s.data["run-1"] = e
	s.mu.Unlock()

	_, ok, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, ok)

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	s.sweep(time.Now())
	s.mu.RLock()
	assert.Empty(t, s.data)
	s.mu.RUnlock()
}

func TestMemoryStore_PutAfterCloseIsNoop(t *testing.T) {
	s := NewMemoryStore(0)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.NoError(t, s.Put(context.Background(), report("run-1")))
}

func TestSQLiteStore_ExpiryAndPrune(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "runs.db"), time.Minute)
	require.NoError(t, err)
	defer s.Close()

	base := time.Now()
	s.now = func() time.Time { return base }
	require.NoError(t, s.Put(ctx, report("old")))

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, report("new")))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM run_reports`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, report("run-1")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, 0)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen(t *testing.T) {
	s, err := Open("memory", "", time.Minute)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	s.Close()

	s, err = Open("sqlite", filepath.Join(t.TempDir(), "r.db"), 0)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = Open("redis", "", 0)
	assert.Error(t, err)
}
