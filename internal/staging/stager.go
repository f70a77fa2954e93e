package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"agilentuimf/internal/fileutil"
	"agilentuimf/internal/logging"
	"agilentuimf/internal/services"
)

// RequiredFiles lists the acquisition files that must exist somewhere below an
// Agilent .d directory for the converter to succeed.
var RequiredFiles = []string{"MSPeak.bin", "MSPeriodicActuals.bin", "MSProfile.bin", "MSScan.bin"}

const (
	requiredExtension = ".bin"
	// partialSuffix marks a staged copy that has not finished.
	partialSuffix = ".partial"
)

// TreeCopier copies a directory tree from remote storage to local storage.
type TreeCopier interface {
	CopyDirectory(ctx context.Context, src, dst string) error
}

// SpaceCheck verifies that dir can hold need more bytes.
type SpaceCheck func(dir string, need int64) error

// MissingFilesError reports required source files that were not found.
type MissingFilesError struct {
	Missing []string
}

func (e *MissingFilesError) Error() string {
	if len(e.Missing) == 1 {
		return "Required file is missing: " + e.Missing[0]
	}
	return "Required files are missing: " + strings.Join(e.Missing, ", ")
}

// Option configures a Stager.
type Option func(*Stager)

// WithLogger sets the stager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stager) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSpaceCheck registers a free-space check run before copying.
func WithSpaceCheck(check SpaceCheck) Option {
	return func(s *Stager) {
		s.spaceCheck = check
	}
}

// Stager copies dataset directories between the remote store and the local work area.
type Stager struct {
	copier     TreeCopier
	logger     *slog.Logger
	spaceCheck SpaceCheck
}

// NewStager constructs a Stager around copier.
func NewStager(copier TreeCopier, opts ...Option) *Stager {
	s := &Stager{copier: copier, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "staging")
	return s
}

// Stage copies remoteDir to localDir. An existing localDir is treated as
// already staged and left untouched without inspecting remoteDir. Otherwise,
// when requireFiles is set, the remote tree must contain every entry of
// RequiredFiles before anything is copied.
//
// The tree is copied into a sibling directory carrying partialSuffix and
// renamed into place once complete, so localDir only ever holds a full copy.
func (s *Stager) Stage(ctx context.Context, remoteDir, localDir string, requireFiles bool) error {
	logger := logging.WithContext(ctx, s.logger)

	staged, err := fileutil.Exists(localDir)
	if err != nil {
		return services.Wrap(services.ErrStaging, "staging", "stat target", localDir, err)
	}
	if staged {
		logger.Info("dataset already staged; skipping copy", logging.String("path", localDir))
		return nil
	}

	exists, err := fileutil.Exists(remoteDir)
	if err != nil {
		return services.Wrap(services.ErrStaging, "staging", "stat source", remoteDir, err)
	}
	if !exists {
		return services.Wrap(services.ErrNotFound, "staging", "", "source directory not found: "+remoteDir, nil)
	}

	if requireFiles {
		if err := CheckRequiredFiles(remoteDir); err != nil {
			return services.Wrap(services.ErrStaging, "staging", "validate source", "", err)
		}
	}

	size, err := fileutil.DirSize(remoteDir)
	if err != nil {
		return services.Wrap(services.ErrStaging, "staging", "measure source", remoteDir, err)
	}
	if s.spaceCheck != nil {
		if err := s.spaceCheck(filepath.Dir(localDir), size); err != nil {
			return services.Wrap(services.ErrStaging, "staging", "free space", "", err)
		}
	}

	logger.Info("copying dataset to local work area",
		logging.String("source", remoteDir),
		logging.String("target", localDir),
		logging.String("size", humanize.Bytes(uint64(size))),
	)
	partial := localDir + partialSuffix
	if err := os.RemoveAll(partial); err != nil {
		return services.Wrap(services.ErrStaging, "staging", "clear partial copy", partial, err)
	}
	if err := s.copier.CopyDirectory(ctx, remoteDir, partial); err != nil {
		s.discardPartial(partial, logger)
		return services.Wrap(services.ErrStaging, "staging", "copy", "", err)
	}
	if err := os.Rename(partial, localDir); err != nil {
		s.discardPartial(partial, logger)
		return services.Wrap(services.ErrStaging, "staging", "publish copy", localDir, err)
	}
	return nil
}

func (s *Stager) discardPartial(partial string, logger *slog.Logger) {
	if err := os.RemoveAll(partial); err != nil {
		logging.WarnWithContext(logger, "failed to remove partial staged copy", "staged_cleanup_failed",
			logging.String("path", partial),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run work clean or remove the directory manually"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
	}
}

// CheckRequiredFiles enumerates .bin files below dir and reports which of
// RequiredFiles are absent. Names are compared case-insensitively.
func CheckRequiredFiles(dir string) error {
	entries, err := fileutil.WalkFiles(dir)
	if err != nil {
		return fmt.Errorf("list source files: %w", err)
	}
	found := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		name := strings.ToLower(filepath.Base(entry.Path))
		if strings.EqualFold(filepath.Ext(name), requiredExtension) {
			found[name] = struct{}{}
		}
	}

	var missing []string
	for _, name := range RequiredFiles {
		if _, ok := found[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingFilesError{Missing: missing}
	}
	return nil
}
