package lockqueue

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Coordinator is signalled before every large-file copy so that lock-queue
// wait timestamps shared with other instances do not go stale.
type Coordinator interface {
	ResetLockQueue()
}

// NopCoordinator ignores lock queue resets.
type NopCoordinator struct{}

// ResetLockQueue implements Coordinator.
func (NopCoordinator) ResetLockQueue() {}

const stampFileName = "lockqueue.stamp"

// StampCoordinator records the time of the most recent reset in a stamp file
// inside the shared lock directory.
type StampCoordinator struct {
	dir string
	now func() time.Time
}

// NewStampCoordinator returns a coordinator writing to dir.
func NewStampCoordinator(dir string) *StampCoordinator {
	return &StampCoordinator{dir: dir, now: time.Now}
}

// ResetLockQueue implements Coordinator. Failures are ignored; the stamp is advisory.
func (c *StampCoordinator) ResetLockQueue() {
	if c == nil || c.dir == "" {
		return
	}
	_ = c.write(c.now())
}

func (c *StampCoordinator) write(ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	payload := strconv.FormatInt(ts.UTC().UnixNano(), 10) + "\n"
	tmp := filepath.Join(c.dir, fmt.Sprintf(".%s.%d", stampFileName, os.Getpid()))
	if err := os.WriteFile(tmp, []byte(payload), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(c.dir, stampFileName))
}

// LastReset returns the most recent reset time recorded in the lock directory.
func (c *StampCoordinator) LastReset() (time.Time, bool) {
	if c == nil || c.dir == "" {
		return time.Time{}, false
	}
	data, err := os.ReadFile(filepath.Join(c.dir, stampFileName))
	if err != nil {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(string(trimNewline(data)), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
