package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"agilentuimf/internal/fileutil"
	"agilentuimf/internal/logging"
)

// DirInfo describes one staged dataset directory in the work directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
	// Active is set while a conversion holds the dataset's run lock.
	Active bool
}

// CleanStaleResult reports what CleanStale did with each expired directory.
type CleanStaleResult struct {
	Removed []string
	Skipped []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// RunLockPath returns the lock file guarding conversions of dataset inside workDir.
func RunLockPath(workDir, dataset string) string {
	return filepath.Join(workDir, "."+dataset+".lock")
}

// ListDirectories returns the staged directories in workDir. A missing or
// unset work directory yields no entries.
func ListDirectories(workDir string) ([]DirInfo, error) {
	entries, err := readWorkDir(workDir)
	if err != nil {
		return nil, err
	}
	var dirs []DirInfo
	for _, entry := range entries {
		info, ok := describe(workDir, entry)
		if !ok {
			continue
		}
		info.Size, _ = fileutil.DirSize(info.Path)
		dirs = append(dirs, info)
	}
	return dirs, nil
}

// CleanStale removes staged directories older than maxAge unless a running
// conversion holds their run lock. Lock files themselves are never removed.
func CleanStale(ctx context.Context, workDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	var result CleanStaleResult
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := readWorkDir(workDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: workDir, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		info, ok := describe(workDir, entry)
		if !ok || !info.ModTime.Before(cutoff) {
			continue
		}
		if info.Active {
			result.Skipped = append(result.Skipped, info.Path)
			continue
		}
		if err := os.RemoveAll(info.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: info.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale work directory", "work_cleanup_failed",
				logging.String("path", info.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, info.Path)
		logger.Info("removed stale work directory",
			logging.String("path", info.Path),
			logging.Duration("age", time.Since(info.ModTime).Round(time.Second)),
			logging.String(logging.FieldEventType, "work_cleanup"),
		)
	}
	return result
}

func readWorkDir(workDir string) ([]fs.DirEntry, error) {
	if strings.TrimSpace(workDir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(workDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}

func describe(workDir string, entry fs.DirEntry) (DirInfo, bool) {
	if !entry.IsDir() {
		return DirInfo{}, false
	}
	stat, err := entry.Info()
	if err != nil {
		return DirInfo{}, false
	}
	name := strings.TrimSuffix(entry.Name(), partialSuffix)
	dataset := strings.TrimSuffix(name, filepath.Ext(name))
	return DirInfo{
		Name:    entry.Name(),
		Path:    filepath.Join(workDir, entry.Name()),
		ModTime: stat.ModTime(),
		Active:  lockHeld(RunLockPath(workDir, dataset)),
	}, true
}

// lockHeld reports whether another process holds the flock at path. A lock
// file that cannot be probed counts as held.
func lockHeld(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return true
	}
	if ok {
		_ = lock.Unlock()
	}
	return !ok
}
