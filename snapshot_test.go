package sqkv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotManager_SaveAndLoadLatestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	clock := NewFakeClock(1000)
	mgr, err := NewSnapshotManager(dir, clock)
	require.NoError(t, err)

	src := newTestRouter(t, 2, 16, clock)
	require.NoError(t, src.Insert(k("a"), k("1")))
	require.NoError(t, src.Insert(k("b"), k("2")))

	path, err := mgr.SaveSnapshot(src)
	require.NoError(t, err)
	require.FileExists(t, path)

	dst := newTestRouter(t, 2, 16, clock)
	loaded, err := mgr.LoadLatestSnapshot(dst)
	require.NoError(t, err)
	require.True(t, loaded)

	v, ok := dst.Get(k("a"))
	require.True(t, ok)
	require.Equal(t, "1", string(v))
}

func TestSnapshotManager_LoadLatestWithNoFilesReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSnapshotManager(dir, NewFakeClock(0))
	require.NoError(t, err)

	dst := newTestRouter(t, 1, 4, NewFakeClock(0))
	loaded, err := mgr.LoadLatestSnapshot(dst)
	require.NoError(t, err)
	require.False(t, loaded)
}

func TestSnapshotManager_LoadSnapshotMissingFileReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSnapshotManager(dir, NewFakeClock(0))
	require.NoError(t, err)

	dst := newTestRouter(t, 1, 4, NewFakeClock(0))
	loaded, err := mgr.LoadSnapshot(dst, filepath.Join(dir, "snapshot-999.bin"))
	require.NoError(t, err)
	require.False(t, loaded)
}

func TestSnapshotManager_SaveDoesNotLeaveTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	clock := NewFakeClock(5)
	mgr, err := NewSnapshotManager(dir, clock)
	require.NoError(t, err)

	src := newTestRouter(t, 1, 4, clock)
	require.NoError(t, src.Insert(k("a"), k("1")))

	_, err = mgr.SaveSnapshot(src)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, strings.HasSuffix(entries[0].Name(), snapshotTempSuffix))
	require.True(t, strings.HasSuffix(entries[0].Name(), snapshotFileSuffix))
}

func TestSnapshotManager_SameMillisecondGetsDistinctFilenames(t *testing.T) {
	dir := t.TempDir()
	clock := NewFakeClock(7)
	mgr, err := NewSnapshotManager(dir, clock)
	require.NoError(t, err)

	r := newTestRouter(t, 1, 4, clock)
	require.NoError(t, r.Insert(k("a"), k("1")))

	p1, err := mgr.SaveSnapshot(r)
	require.NoError(t, err)
	p2, err := mgr.SaveSnapshot(r)
	require.NoError(t, err)

	require.NotEqual(t, p1, p2)
	require.FileExists(t, p1)
	require.FileExists(t, p2)
}

func TestSnapshotManager_CleanupOldSnapshotsKeepsMostRecent(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSnapshotManager(dir, NewFakeClock(0))
	require.NoError(t, err)

	r := newTestRouter(t, 1, 4, NewFakeClock(0))
	require.NoError(t, r.Insert(k("a"), k("1")))

	var paths []string
	for i := 0; i < 5; i++ {
		clock := NewFakeClock(int64(1000 + i))
		mgr.clock = clock
		p, err := mgr.SaveSnapshot(r)
		require.NoError(t, err)
		paths = append(paths, p)
		// Force distinct mtimes since CleanupOldSnapshots orders by ModTime.
		future := time.Now().Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, os.Chtimes(p, future, future))
	}

	deleted, err := mgr.CleanupOldSnapshots(2)
	require.NoError(t, err)
	require.Equal(t, 3, deleted)

	remaining, err := mgr.listSnapshotFiles()
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

func TestSnapshotManager_CleanupRejectsNegativeKeep(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSnapshotManager(dir, NewFakeClock(0))
	require.NoError(t, err)

	_, err = mgr.CleanupOldSnapshots(-1)
	require.Error(t, err)
	var invalidArg *ErrInvalidArgument
	require.ErrorAs(t, err, &invalidArg)
}

func TestSnapshotManager_PeriodicLifecycleAndDoubleStartStop(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSnapshotManager(dir, NewFakeClock(0))
	require.NoError(t, err)

	r := newTestRouter(t, 1, 4, NewFakeClock(0))

	require.NoError(t, mgr.StartPeriodic(r, 1))
	err = mgr.StartPeriodic(r, 1)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, mgr.StopPeriodic())
	err = mgr.StopPeriodic()
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestSnapshotManager_StartPeriodicRejectsNonPositiveInterval(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSnapshotManager(dir, NewFakeClock(0))
	require.NoError(t, err)

	r := newTestRouter(t, 1, 4, NewFakeClock(0))
	err = mgr.StartPeriodic(r, 0)
	require.Error(t, err)
	var invalidArg *ErrInvalidArgument
	require.ErrorAs(t, err, &invalidArg)
}

func TestSnapshotManager_FailureSinkReceivesErrorsFromPeriodicSave(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSnapshotManager(dir, NewFakeClock(0))
	require.NoError(t, err)

	// Remove the directory out from under the manager so periodic writes fail.
	require.NoError(t, os.RemoveAll(dir))

	failures := make(chan error, 8)
	mgr.SetFailureSink(func(err error) { failures <- err })

	r := newTestRouter(t, 1, 4, NewFakeClock(0))
	require.NoError(t, mgr.StartPeriodic(r, 1))

	select {
	case err := <-failures:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a failure sink invocation within 3s")
	}

	require.NoError(t, mgr.StopPeriodic())
}
