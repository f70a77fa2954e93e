package lockqueue

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"

	"agilentuimf/internal/fileutil"
	"agilentuimf/internal/logging"
)

const (
	// DefaultLargeFileThreshold is the size at which copies take the shared lock.
	DefaultLargeFileThreshold int64 = 20 * 1024 * 1024

	lockFileName      = "large-copy.lock"
	lockRetryDelay    = 500 * time.Millisecond
	lockWaitLogPeriod = time.Minute
)

// Option configures a Copier.
type Option func(*Copier)

// WithCoordinator registers the coordinator signalled before large copies.
func WithCoordinator(c Coordinator) Option {
	return func(cp *Copier) {
		if c != nil {
			cp.coordinator = c
		}
	}
}

// WithLockDir sets the shared directory holding the large-copy lock. Without a
// lock directory large files are copied without taking a lock.
func WithLockDir(dir string) Option {
	return func(cp *Copier) {
		cp.lockDir = dir
	}
}

// WithThreshold overrides the large-file threshold in bytes.
func WithThreshold(bytes int64) Option {
	return func(cp *Copier) {
		if bytes > 0 {
			cp.threshold = bytes
		}
	}
}

// WithLogger sets the logger used for copy diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(cp *Copier) {
		if logger != nil {
			cp.logger = logger
		}
	}
}

// Copier copies files and directory trees with size-aware lock coordination.
type Copier struct {
	coordinator Coordinator
	lockDir     string
	threshold   int64
	logger      *slog.Logger
}

// NewCopier constructs a Copier. The zero configuration uses NopCoordinator and no lock directory.
func NewCopier(opts ...Option) *Copier {
	c := &Copier{
		coordinator: NopCoordinator{},
		threshold:   DefaultLargeFileThreshold,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "lockqueue")
	return c
}

// CopyDirectory copies the tree at src to dst, creating dst and any parents.
func (c *Copier) CopyDirectory(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", src)
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return c.copyOne(ctx, path, target)
	})
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}

	if size, sizeErr := fileutil.DirSize(dst); sizeErr == nil {
		c.logger.Debug("directory copied",
			logging.String("source", src),
			logging.String("destination", dst),
			logging.String("size", humanize.Bytes(uint64(size))),
		)
	}
	return nil
}

// CopyFile copies a single file. When overwrite is false an existing
// destination is an error.
func (c *Copier) CopyFile(ctx context.Context, src, dst string, overwrite bool) error {
	if !overwrite {
		exists, err := fileutil.Exists(dst)
		if err != nil {
			return fmt.Errorf("stat destination: %w", err)
		}
		if exists {
			return fmt.Errorf("destination %s already exists", dst)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	if err := c.copyOne(ctx, src, dst); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// RemoveDirectory deletes path recursively. A missing directory is not an error.
func (c *Copier) RemoveDirectory(path string) error {
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (c *Copier) copyOne(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.Size() < c.threshold {
		return fileutil.CopyFileMode(src, dst, info.Mode().Perm())
	}

	c.coordinator.ResetLockQueue()
	unlock, err := c.acquire(ctx, src)
	if err != nil {
		return err
	}
	defer unlock()

	start := time.Now()
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return err
	}
	c.logger.Info("large file copied",
		logging.String("file", filepath.Base(src)),
		logging.String("size", humanize.Bytes(uint64(info.Size()))),
		logging.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
	)
	return nil
}

func (c *Copier) acquire(ctx context.Context, src string) (func(), error) {
	if c.lockDir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(c.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(filepath.Join(c.lockDir, lockFileName))

	waitStart := time.Now()
	lastLog := waitStart
	for {
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire copy lock: %w", err)
		}
		if ok {
			break
		}
		if time.Since(lastLog) >= lockWaitLogPeriod {
			c.logger.Info("waiting for large-copy lock",
				logging.String("file", filepath.Base(src)),
				logging.Duration("waited", time.Since(waitStart).Round(time.Second)),
			)
			lastLog = time.Now()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return func() { _ = lock.Unlock() }, nil
}
