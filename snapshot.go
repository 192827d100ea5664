package sqkv

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const snapshotFilePrefix = "snapshot-"
const snapshotFileSuffix = ".bin"
const snapshotTempSuffix = ".tmp"

// FailureSink receives errors from a periodic save attempt. The default,
// installed by NewSnapshotManager, logs through the standard logger;
// callers may substitute their own to route failures elsewhere. A failed
// periodic save never stops the schedule (spec.md §4.5/§7).
type FailureSink func(err error)

// SnapshotManager owns a directory of snapshot-*.bin files and performs
// atomic capture/restore against a Router, per spec.md §4.5. It is
// modeled on the teacher's cleanupTicker: a single ticker-driven goroutine
// gated by a stop channel, generalized from per-shard TTL
// cleanup to whole-store snapshot capture.
type SnapshotManager struct {
	dir   string
	clock Clock
	sink  FailureSink

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	seqGuard sync.Mutex // serializes filename selection against collisions
}

// NewSnapshotManager creates a SnapshotManager rooted at dir, creating the
// directory if it does not already exist.
func NewSnapshotManager(dir string, clock Clock) (*SnapshotManager, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &ErrIO{Op: "mkdir", Err: err}
	}
	return &SnapshotManager{
		dir:   dir,
		clock: clock,
		sink:  func(err error) { log.Printf("sqkv: periodic snapshot save failed: %v", err) },
	}, nil
}

// SetFailureSink overrides where periodic save errors are reported.
func (m *SnapshotManager) SetFailureSink(sink FailureSink) {
	if sink != nil {
		m.sink = sink
	}
}

func snapshotFileName(tsMillis int64, seq int) string {
	if seq == 0 {
		return fmt.Sprintf("%s%d%s", snapshotFilePrefix, tsMillis, snapshotFileSuffix)
	}
	return fmt.Sprintf("%s%d-%d%s", snapshotFilePrefix, tsMillis, seq, snapshotFileSuffix)
}

// SaveSnapshot captures router's state and writes it to the snapshot
// directory via temp-file-then-atomic-rename, returning the final path.
// Two captures landing in the same millisecond get a monotonically
// increasing "-N" suffix rather than colliding (spec.md §9).
func (m *SnapshotManager) SaveSnapshot(router *Router) (string, error) {
	img := router.CaptureSnapshot()
	data := EncodeSnapshot(img)

	m.seqGuard.Lock()
	defer m.seqGuard.Unlock()

	seq := 0
	var finalPath string
	for {
		finalPath = filepath.Join(m.dir, snapshotFileName(img.CaptureTimestampMillis, seq))
		if _, err := os.Stat(finalPath); os.IsNotExist(err) {
			break
		}
		seq++
	}

	tmpPath := finalPath + snapshotTempSuffix
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return "", &ErrIO{Op: "write temp snapshot", Err: err}
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", &ErrIO{Op: "rename snapshot into place", Err: err}
	}
	return finalPath, nil
}

// listSnapshotFiles returns every snapshot-*.bin file in the directory,
// sorted by last-modified time, most recent first. Temp files and any
// other non-matching file are ignored, per spec.md §6.3.
func (m *SnapshotManager) listSnapshotFiles() ([]os.FileInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, &ErrIO{Op: "read snapshot dir", Err: err}
	}

	var infos []os.FileInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, snapshotFilePrefix) || !strings.HasSuffix(name, snapshotFileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModTime().After(infos[j].ModTime())
	})
	return infos, nil
}

// LoadLatestSnapshot restores router from the most recently modified
// snapshot file in the directory. Returns false, nil if no snapshot
// exists.
func (m *SnapshotManager) LoadLatestSnapshot(router *Router) (bool, error) {
	infos, err := m.listSnapshotFiles()
	if err != nil {
		return false, err
	}
	if len(infos) == 0 {
		return false, nil
	}
	return m.LoadSnapshot(router, filepath.Join(m.dir, infos[0].Name()))
}

// LoadSnapshot restores router from the snapshot at path. Returns false,
// nil if the file does not exist. The file is fully decoded in memory
// before any shard is touched, so a decode failure leaves router
// unchanged (spec.md §4.5 failure semantics).
func (m *SnapshotManager) LoadSnapshot(router *Router, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &ErrIO{Op: "read snapshot file", Err: err}
	}

	img, err := DecodeSnapshot(data)
	if err != nil {
		return false, err
	}
	if err := router.RestoreSnapshot(img); err != nil {
		return false, err
	}
	return true, nil
}

// CleanupOldSnapshots keeps the `keep` most recently modified snapshot
// files and deletes the rest, returning the number deleted.
func (m *SnapshotManager) CleanupOldSnapshots(keep int) (int, error) {
	if keep < 0 {
		return 0, &ErrInvalidArgument{Message: "keep must be >= 0"}
	}
	infos, err := m.listSnapshotFiles()
	if err != nil {
		return 0, err
	}
	if keep >= len(infos) {
		return 0, nil
	}

	deleted := 0
	for _, info := range infos[keep:] {
		if err := os.Remove(filepath.Join(m.dir, info.Name())); err != nil && !os.IsNotExist(err) {
			return deleted, &ErrIO{Op: "remove old snapshot", Err: err}
		}
		deleted++
	}
	return deleted, nil
}

// StartPeriodic schedules SaveSnapshot against router at a fixed rate.
// intervalSeconds must be > 0. Starting while already running fails with
// ErrAlreadyRunning. Save failures are caught, routed to the configured
// FailureSink, and never stop the schedule.
func (m *SnapshotManager) StartPeriodic(router *Router, intervalSeconds int) error {
	if intervalSeconds <= 0 {
		return &ErrInvalidArgument{Message: "intervalSeconds must be > 0"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.running = true

	go m.runPeriodic(router, time.Duration(intervalSeconds)*time.Second, m.stopCh, m.doneCh)
	return nil
}

func (m *SnapshotManager) runPeriodic(router *Router, interval time.Duration, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.SaveSnapshot(router); err != nil {
				m.sink(err)
			}
		case <-stopCh:
			return
		}
	}
}

// StopPeriodic halts the schedule and waits up to a 5-second grace period
// for an in-flight save to finish. Stopping when not running fails with
// ErrNotRunning.
func (m *SnapshotManager) StopPeriodic() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.running = false
	m.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
	}
	return nil
}
