package conversion

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"agilentuimf/internal/config"
	"agilentuimf/internal/layout"
	"agilentuimf/internal/multiplex"
	"agilentuimf/internal/uimf"
)

// Request names one dataset to convert. It is not modified during a run.
type Request struct {
	Dataset string
	// RemoteDir is the dataset directory on remote storage. It holds
	// <Dataset>.d and receives <Dataset>.uimf.
	RemoteDir     string
	WorkDir       string
	ConverterPath string
	MaxRuntime    time.Duration
}

// NewRequest builds a request from configuration. An empty remoteDir resolves
// to <remote_root>/<dataset>.
func NewRequest(cfg *config.Config, dataset, remoteDir string) Request {
	dataset = strings.TrimSpace(dataset)
	if remoteDir == "" && cfg.Paths.RemoteRoot != "" && dataset != "" {
		remoteDir = filepath.Join(cfg.Paths.RemoteRoot, dataset)
	}
	return Request{
		Dataset:       dataset,
		RemoteDir:     remoteDir,
		WorkDir:       cfg.Paths.WorkDir,
		ConverterPath: cfg.Converter.Path,
		MaxRuntime:    cfg.MaxRuntime(),
	}
}

// OutputPath is the canonical local UIMF path.
func (r Request) OutputPath() string {
	return filepath.Join(r.WorkDir, r.Dataset+uimf.Extension)
}

// SourceDir is the remote .d directory.
func (r Request) SourceDir() string {
	return filepath.Join(r.RemoteDir, r.Dataset+layout.DatasetExtension)
}

// StagedDir is the local copy of SourceDir.
func (r Request) StagedDir() string {
	return filepath.Join(r.WorkDir, r.Dataset+layout.DatasetExtension)
}

func (r Request) validate() error {
	switch {
	case r.Dataset == "":
		return errors.New("dataset name is required")
	case strings.ContainsAny(r.Dataset, `/\`):
		return errors.New("dataset name must not contain path separators")
	case r.RemoteDir == "":
		return errors.New("remote dataset directory is required")
	case r.WorkDir == "":
		return errors.New("work directory is required")
	case r.ConverterPath == "":
		return errors.New("converter path is required")
	}
	return nil
}

// Outcome is the closeout of one run.
type Outcome struct {
	RunID   string
	Dataset string
	Success bool
	// Message is the closeout message.
	Message string
	// Evaluation notes borderline results such as undersized files.
	Evaluation string
	// Category is the failure class, empty on success.
	Category string
	// Progress is the converter progress in percent, never decreasing within a run.
	Progress   float64
	RemotePath string
	// Encoding is set when classification ran.
	Encoding *multiplex.Result
	Elapsed  time.Duration
}
