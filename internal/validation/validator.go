// Package validation checks that a converted UIMF file exists, is large
// enough, and holds at least one non-empty spectrum.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"agilentuimf/internal/logging"
	"agilentuimf/internal/services"
	"agilentuimf/internal/uimf"
)

const (
	// DefaultMinSizeKB is the size below which a file always fails.
	DefaultMinSizeKB = 5
	// DefaultSmallSizeKB is the size below which the content check alone decides.
	DefaultSmallSizeKB = 50
)

// FrameSource is the read access the deep check needs.
type FrameSource interface {
	Frames(ctx context.Context) ([]uimf.Frame, error)
	Scans(ctx context.Context, frame int) ([]uimf.Scan, error)
	PointCount(ctx context.Context, scan uimf.Scan) (int, error)
	Close() error
}

// OpenFunc opens a frame source for path.
type OpenFunc func(ctx context.Context, path string) (FrameSource, error)

// OpenUIMF opens path with the SQLite reader.
func OpenUIMF(ctx context.Context, path string) (FrameSource, error) {
	return uimf.Open(ctx, path)
}

// Report describes the checks run against one file.
type Report struct {
	Path      string
	Exists    bool
	SizeBytes int64
	SizeKB    float64
	// ContentChecked is set once the deep check ran.
	ContentChecked bool
	HasSpectra     bool
	Valid          bool
	Message        string
	// Evaluation carries a note for borderline results.
	Evaluation string
}

// Option configures a Validator.
type Option func(*Validator)

// WithThresholds overrides the minimum and small size thresholds in KB.
func WithThresholds(minKB, smallKB int64) Option {
	return func(v *Validator) {
		if minKB > 0 {
			v.minKB = minKB
		}
		if smallKB > 0 {
			v.smallKB = smallKB
		}
	}
}

// WithOpener replaces the frame source opener.
func WithOpener(open OpenFunc) Option {
	return func(v *Validator) {
		if open != nil {
			v.open = open
		}
	}
}

// WithLogger sets the validator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Validator runs the tiered UIMF checks.
type Validator struct {
	minKB   int64
	smallKB int64
	open    OpenFunc
	logger  *slog.Logger
}

// NewValidator constructs a Validator with default thresholds.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		minKB:   DefaultMinSizeKB,
		smallKB: DefaultSmallSizeKB,
		open:    OpenUIMF,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = logging.NewComponentLogger(v.logger, "validation")
	return v
}

// Validate checks path. The error is nil only when the file is valid; it is
// marked with services.ErrNotFound or services.ErrValidation otherwise.
func (v *Validator) Validate(ctx context.Context, path string) (Report, error) {
	logger := logging.WithContext(ctx, v.logger)
	report := Report{Path: path}
	name := filepath.Base(path)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			report.Message = "UIMF file not found: " + path
			return report, services.Wrap(services.ErrNotFound, "validation", "", report.Message, nil)
		}
		report.Message = "unable to stat UIMF file " + path
		return report, services.Wrap(services.ErrValidation, "validation", "stat", path, err)
	}
	report.Exists = true
	report.SizeBytes = info.Size()
	report.SizeKB = float64(info.Size()) / 1024

	if report.SizeKB < float64(v.minKB) {
		report.Message = "UIMF file is too small: " + name
		report.Evaluation = fmt.Sprintf("UIMF file size is %s; expected at least %d KB", FormatSize(report.SizeKB), v.minKB)
		logging.WarnWithContext(logger, "uimf file below minimum size", "uimf_too_small",
			logging.String("path", path),
			logging.String("size", FormatSize(report.SizeKB)),
			logging.String(logging.FieldImpact, "conversion failed"),
		)
		return report, services.Wrap(services.ErrValidation, "validation", "", report.Message+" ("+FormatSize(report.SizeKB)+")", nil)
	}

	valid, msg := v.checkContent(ctx, path, logger)
	report.ContentChecked = true
	report.HasSpectra = valid
	if !valid {
		report.Message = msg
		if report.SizeKB < float64(v.smallKB) {
			report.Evaluation = fmt.Sprintf("UIMF file is only %s", FormatSize(report.SizeKB))
		}
		return report, services.Wrap(services.ErrValidation, "validation", "", msg, nil)
	}

	report.Valid = true
	if report.SizeKB < float64(v.smallKB) {
		report.Evaluation = fmt.Sprintf("UIMF file is small (%s) but contains spectra", FormatSize(report.SizeKB))
		logger.Info("small uimf file passed content check",
			logging.String("path", path),
			logging.String("size", FormatSize(report.SizeKB)),
		)
	}
	logger.Debug("uimf file validated", logging.String("path", path), logging.String("size", FormatSize(report.SizeKB)))
	return report, nil
}

// checkContent stops at the first scan holding at least one point.
func (v *Validator) checkContent(ctx context.Context, path string, logger *slog.Logger) (valid bool, msg string) {
	name := filepath.Base(path)
	corrupt := func(err error) (bool, string) {
		logging.WarnWithContext(logger, "error reading uimf file", "uimf_read_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "conversion failed"),
		)
		return false, "UIMF file appears corrupt (exception reading data): " + name
	}

	defer func() {
		if r := recover(); r != nil {
			valid, msg = corrupt(fmt.Errorf("panic: %v", r))
		}
	}()

	src, err := v.open(ctx, path)
	if err != nil {
		return corrupt(err)
	}
	defer src.Close()

	frames, err := src.Frames(ctx)
	if err != nil {
		return corrupt(err)
	}
	if len(frames) == 0 {
		return false, "UIMF file appears corrupt (no frame info): " + name
	}

	for _, frame := range frames {
		scans, err := src.Scans(ctx, frame.Number)
		if err != nil {
			return corrupt(err)
		}
		for _, scan := range scans {
			count, err := src.PointCount(ctx, scan)
			if err != nil {
				return corrupt(err)
			}
			if count > 0 {
				return true, ""
			}
		}
	}
	return false, "UIMF file has frame info but no scan data: " + name
}

// FormatSize renders a size given in kilobytes using the largest fitting unit.
func FormatSize(kb float64) string {
	switch {
	case kb < 0.001:
		return "0 bytes"
	case kb < 1024:
		return fmt.Sprintf("%.0f KB", kb)
	case kb < 1024*1024:
		return fmt.Sprintf("%.1f MB", kb/1024)
	default:
		return fmt.Sprintf("%.1f GB", kb/1024/1024)
	}
}
