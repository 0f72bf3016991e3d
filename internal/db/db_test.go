package db

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radarloop/internal/timeutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "radarloop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_AppliesPragmas(t *testing.T) {
	db := openTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestOpen_MigratesToLatest(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
	assert.False(t, dirty)

	// Reopening an up-to-date ledger is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='run_frames'`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp())
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='run_frames'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestEmbeddedMigrations(t *testing.T) {
	migFS, err := getMigrationsFS()
	require.NoError(t, err)
	matches, err := fs.Glob(migFS, "*.sql")
	require.NoError(t, err)
	assert.Len(t, matches, 4)
}

func TestLedger_RunLifecycle(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2024, 5, 17, 12, 30, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	ledger := NewLedger(db, clock)
	ctx := context.Background()

	id, err := ledger.StartRun(ctx, "Corozal", "2024/05/17", "LISTING")
	require.NoError(t, err)
	assert.Len(t, id, 36)

	require.NoError(t, ledger.SetState(ctx, id, "SYNCING"))
	run, err := ledger.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "SYNCING", run.State)
	assert.Nil(t, run.FinishedAt)
	assert.True(t, run.StartedAt.Equal(start))

	cot := time.FixedZone("UTC-5", -5*3600)
	require.NoError(t, ledger.RecordFrame(ctx, id, "l2/COR2.RAW", time.Date(2024, 5, 17, 7, 10, 0, 0, cot), "2024_05_17_07_10_00.png"))
	require.NoError(t, ledger.RecordFrame(ctx, id, "l2/COR1.RAW", time.Date(2024, 5, 17, 7, 4, 5, 0, cot), "2024_05_17_07_04_05.png"))

	clock.Advance(90 * time.Second)
	require.NoError(t, ledger.FinishRun(ctx, id, "DONE", 2, "Corozal.gif", "", ""))

	run, err = ledger.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "DONE", run.State)
	assert.Equal(t, 2, run.FrameCount)
	assert.Equal(t, "Corozal.gif", run.AnimationPath)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, 90*time.Second, run.FinishedAt.Sub(run.StartedAt))

	frames, err := ledger.Frames(ctx, id)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "l2/COR1.RAW", frames[0].ScanKey)
	assert.Equal(t, "2024_05_17_07_10_00.png", frames[1].ImagePath)
	assert.True(t, frames[0].TimestampLocal.Equal(time.Date(2024, 5, 17, 12, 4, 5, 0, time.UTC)))
}

func TestLedger_FailedRun(t *testing.T) {
	ledger := NewLedger(openTestDB(t), nil)
	ctx := context.Background()

	id, err := ledger.StartRun(ctx, "Corozal", "2024/05/17", "LISTING")
	require.NoError(t, err)
	require.NoError(t, ledger.FinishRun(ctx, id, "FAILED", 0, "", "DecodeError", "Corozal/COR3.RAW: truncated"))

	run, err := ledger.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", run.State)
	assert.Equal(t, "DecodeError", run.ErrorKind)
	assert.Equal(t, "Corozal/COR3.RAW: truncated", run.ErrorMessage)
}

func TestLedger_UnknownRun(t *testing.T) {
	ledger := NewLedger(openTestDB(t), nil)
	ctx := context.Background()

	assert.ErrorIs(t, ledger.SetState(ctx, "nope", "DONE"), ErrRunNotFound)
	assert.ErrorIs(t, ledger.FinishRun(ctx, "nope", "DONE", 0, "", "", ""), ErrRunNotFound)
	_, err := ledger.Run(ctx, "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	err = ledger.RecordFrame(ctx, "nope", "k", time.Now(), "f.png")
	assert.Error(t, err, "frames must reference an existing run")
}

func TestLedger_RecentRuns(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC))
	ledger := NewLedger(openTestDB(t), clock)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		clock.Advance(time.Hour)
		id, err := ledger.StartRun(ctx, "Corozal", "2024/05/17", "LISTING")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := ledger.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}
