package runlog_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/streamflow/pkg/streamflow/runlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_Persistence(t *testing.T) {
	// Create temp file for database
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "runs.db")

	// First store instance
	store1, err := runlog.NewSQLiteStore(dbPath)
	require.NoError(t, err)

	require.NoError(t, store1.Append(sampleRecord("run-1")))
	require.NoError(t, store1.Close())

	// Second store instance (reopening the database)
	store2, err := runlog.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	// Data should persist
	got, err := store2.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, "digest-abc", got.Digest)
	assert.Equal(t, runlog.StatusOk, got.Status)
	assert.Equal(t, []byte(`{"digest":"digest-abc","tasks":4}`), got.Schedule)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	// Try to create in non-existent directory
	_, err := runlog.NewSQLiteStore("/nonexistent/path/runs.sqlite")
	assert.Error(t, err)
}

func TestSQLiteStore_CloseIdempotent(t *testing.T) {
	store, err := runlog.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	// Close multiple times should be safe
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_Concurrent(t *testing.T) {
	store, err := runlog.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	const numGoroutines = 50
	const numOps = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			for j := 0; j < numOps; j++ {
				runID := fmt.Sprintf("run-%d-%d", id%10, j%5)

				switch j % 4 {
				case 0, 1:
					rec := sampleRecord(runID)
					rec.Started = time.Now()
					_ = store.Append(rec)
				case 2:
					_, _ = store.Get(runID)
				case 3:
					_, _ = store.ListByDigest("digest-abc", 10)
				}
			}
		}(i)
	}

	wg.Wait()
}

func TestSQLiteStore_LargeSchedule(t *testing.T) {
	store, err := runlog.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	// 1MB schedule blob
	large := make([]byte, 1024*1024)
	for i := range large {
		large[i] = byte(i % 256)
	}

	rec := sampleRecord("run-large")
	rec.Schedule = large
	require.NoError(t, store.Append(rec))

	got, err := store.Get("run-large")
	require.NoError(t, err)
	assert.Equal(t, large, got.Schedule)
}

func TestSQLiteStore_FileSizeGrowth(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "growth.db")

	store, err := runlog.NewSQLiteStore(dbPath)
	require.NoError(t, err)

	// Append records with 10KB schedules each
	for i := 0; i < 10; i++ {
		rec := sampleRecord(fmt.Sprintf("run-%d", i))
		rec.Schedule = make([]byte, 10000)
		require.NoError(t, store.Append(rec))
	}

	require.NoError(t, store.Close())

	// Check file exists and has reasonable size
	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(50000)) // Should be at least 50KB
}

func TestSQLiteStore_NilSchedule(t *testing.T) {
	store, err := runlog.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	rec := sampleRecord("run-1")
	rec.Schedule = nil
	require.NoError(t, store.Append(rec))

	got, err := store.Get("run-1")
	require.NoError(t, err)
	assert.Empty(t, got.Schedule)
	assert.Error(t, got.DecodeSchedule(&map[string]any{}))
}
