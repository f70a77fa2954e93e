package preflight

import (
	"context"
	"errors"
	"strings"

	"agilentuimf/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks a conversion depends on.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Work directory (always checked)
	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))

	// Remote root (when configured)
	if cfg.Paths.RemoteRoot != "" {
		results = append(results, CheckDirectoryReadable("Remote dataset root", cfg.Paths.RemoteRoot))
	}

	results = append(results, CheckExecutable("Converter", cfg.Converter.Path))

	return results
}

// Failures joins the details of failed checks into one error.
func Failures(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Name+": "+r.Detail)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return errors.New(strings.Join(failed, "; "))
}

// FreeSpaceGuard returns a check that requires need plus marginBytes to be
// free below dir.
func FreeSpaceGuard(ctx context.Context, marginBytes int64) func(dir string, need int64) error {
	return func(dir string, need int64) error {
		total := need + marginBytes
		if total < 0 {
			total = 0
		}
		if r := CheckFreeSpace(ctx, "Work volume", dir, uint64(total)); !r.Passed {
			return errors.New(r.Detail)
		}
		return nil
	}
}
