// Package finalize moves the converter output to its canonical name and
// transfers it to the remote dataset directory.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"agilentuimf/internal/fileutil"
	"agilentuimf/internal/layout"
	"agilentuimf/internal/logging"
	"agilentuimf/internal/services"
	"agilentuimf/internal/uimf"
)

// FileCopier copies single files between local and remote storage.
type FileCopier interface {
	CopyFile(ctx context.Context, src, dst string, overwrite bool) error
}

// Request describes the output of one converter run.
type Request struct {
	Dataset   string
	WorkDir   string
	RemoteDir string
	Layout    layout.Result
	// ConsolePath is deleted once the output has been transferred.
	ConsolePath string
}

// CanonicalPath returns <WorkDir>/<Dataset>.uimf.
func (r Request) CanonicalPath() string {
	return filepath.Join(r.WorkDir, r.Dataset+uimf.Extension)
}

// RemotePath returns the destination of the transferred file.
func (r Request) RemotePath() string {
	return filepath.Join(r.RemoteDir, r.Dataset+uimf.Extension)
}

// Result reports where the output ended up.
type Result struct {
	RemotePath string
	Renamed    bool
	SizeBytes  int64
}

// Finalizer renames, transfers, and cleans up converter output.
type Finalizer struct {
	copier FileCopier
	logger *slog.Logger
}

// New constructs a Finalizer.
func New(copier FileCopier, logger *slog.Logger) *Finalizer {
	return &Finalizer{copier: copier, logger: logging.NewComponentLogger(logger, "finalize")}
}

// Finalize renames output produced under a nested layout, copies the canonical
// file to the remote dataset directory, and removes local temporaries.
func (f *Finalizer) Finalize(ctx context.Context, req Request) (Result, error) {
	logger := logging.WithContext(ctx, f.logger)
	canonical := req.CanonicalPath()
	var result Result

	if req.Layout.Alternate && req.Layout.NestedName() != req.Dataset {
		produced := filepath.Join(req.WorkDir, req.Layout.NestedName()+uimf.Extension)
		if err := renameOutput(produced, canonical); err != nil {
			return result, services.Wrap(services.ErrPostProcess, "finalize", "rename", "", err)
		}
		result.Renamed = true
		logger.Info("renamed converter output",
			logging.String("from", filepath.Base(produced)),
			logging.String("to", filepath.Base(canonical)),
		)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, services.Wrap(services.ErrPostProcess, "finalize", "",
				"converter did not create "+filepath.Base(canonical), nil)
		}
		return result, services.Wrap(services.ErrPostProcess, "finalize", "stat output", canonical, err)
	}
	result.SizeBytes = info.Size()

	remote := req.RemotePath()
	if err := f.copier.CopyFile(ctx, canonical, remote, true); err != nil {
		return result, services.Wrap(services.ErrPostProcess, "finalize", "transfer", "", err)
	}
	result.RemotePath = remote
	logger.Info("uimf file transferred",
		logging.String("destination", remote),
		logging.String("size", humanize.Bytes(uint64(info.Size()))),
		logging.String(logging.FieldEventType, "uimf_transferred"),
	)

	if err := os.Remove(canonical); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(logger, "failed to delete local uimf copy", "local_cleanup_failed",
			logging.String("path", canonical),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the file manually or run clean"),
		)
	}
	if req.ConsolePath != "" {
		_ = os.Remove(req.ConsolePath)
	}
	return result, nil
}

func renameOutput(produced, canonical string) error {
	exists, err := fileutil.Exists(produced)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("expected converter output %s not found", filepath.Base(produced))
	}
	if err := os.Remove(canonical); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", filepath.Base(canonical), err)
	}
	if err := os.Rename(produced, canonical); err != nil {
		return fmt.Errorf("rename %s to %s: %w", filepath.Base(produced), filepath.Base(canonical), err)
	}
	return nil
}
