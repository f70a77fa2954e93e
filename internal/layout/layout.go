// Package layout locates the acquisition data inside a staged Agilent .d directory.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// AcquisitionDir is the subdirectory the converter expects directly below a .d directory.
	AcquisitionDir = "AcqData"
	// DatasetExtension marks Agilent dataset directories.
	DatasetExtension = ".d"
)

// Result describes where the converter should read from.
type Result struct {
	// DataDir is the .d directory that directly contains AcqData.
	DataDir string
	// Alternate is set when DataDir is nested one level inside the staged directory.
	Alternate bool
	// Ignored lists further nested candidates that also contained AcqData.
	Ignored []string
}

// NestedName returns the base name of DataDir without its extension. The
// converter names its output after this directory.
func (r Result) NestedName() string {
	base := filepath.Base(r.DataDir)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ErrNotFound is returned when no candidate directory holds AcqData.
var ErrNotFound = errors.New("acquisition folder not found")

// Resolve checks stagedDir for AcqData and falls back to nested .d
// subdirectories. Candidates are examined in lexical order and the first
// match wins.
func Resolve(stagedDir string) (Result, error) {
	ok, err := hasAcquisitionDir(stagedDir)
	if err != nil {
		return Result{}, err
	}
	if ok {
		return Result{DataDir: stagedDir}, nil
	}

	entries, err := os.ReadDir(stagedDir)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", stagedDir, err)
	}

	var result Result
	for _, entry := range entries {
		if !entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), DatasetExtension) {
			continue
		}
		candidate := filepath.Join(stagedDir, entry.Name())
		ok, err := hasAcquisitionDir(candidate)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		if result.DataDir == "" {
			result = Result{DataDir: candidate, Alternate: true}
			continue
		}
		result.Ignored = append(result.Ignored, candidate)
	}
	if result.DataDir == "" {
		return Result{}, fmt.Errorf("%w in %s or any %s subfolder: %s", ErrNotFound, stagedDir, DatasetExtension, AcquisitionDir)
	}
	return result, nil
}

func hasAcquisitionDir(dir string) (bool, error) {
	info, err := os.Stat(filepath.Join(dir, AcquisitionDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", AcquisitionDir, err)
	}
	return info.IsDir(), nil
}
