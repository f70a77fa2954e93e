package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"agilentuimf/internal/staging"
)

func newWorkCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Inspect and clean the local work directory",
	}
	cmd.AddCommand(newWorkListCommand(ctx))
	cmd.AddCommand(newWorkCleanCommand(ctx))
	return cmd
}

func newWorkListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staged datasets left in the work directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dirs, err := staging.ListDirectories(cfg.Paths.WorkDir)
			if err != nil {
				return fmt.Errorf("list work directories: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No staged datasets")
				return nil
			}

			now := time.Now()
			rows := make([][]string, 0, len(dirs))
			var totalSize int64
			for _, dir := range dirs {
				totalSize += dir.Size
				state := "idle"
				if dir.Active {
					state = "converting"
				}
				rows = append(rows, []string{dir.Name, state, formatDuration(now.Sub(dir.ModTime)), humanize.Bytes(uint64(dir.Size))})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Directory", "State", "Age", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
			))
			fmt.Fprintf(out, "Total: %d directories, %s\n", len(dirs), humanize.Bytes(uint64(totalSize)))
			return nil
		},
	}
}

func newWorkCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove abandoned staged datasets",
		Long: `Remove staged datasets older than staging.stale_hours (or --max-age).

Directories belonging to a conversion that is still running are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			age := cfg.StaleAge()
			if maxAge > 0 {
				age = maxAge
			}

			result := staging.CleanStale(cmd.Context(), cfg.Paths.WorkDir, age, logger)
			if ctx.JSONMode() {
				return writeCleanJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			if len(result.Removed) == 0 && len(result.Errors) == 0 {
				fmt.Fprintln(out, "No stale directories found")
			}
			for _, path := range result.Removed {
				fmt.Fprintf(out, "Removed %s\n", path)
			}
			for _, path := range result.Skipped {
				fmt.Fprintf(out, "Skipped %s (conversion in progress)\n", path)
			}
			for _, e := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to remove %s: %v\n", e.Path, e.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d directories could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Override staging.stale_hours")
	return cmd
}

func writeCleanJSON(cmd *cobra.Command, result staging.CleanStaleResult) error {
	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
	}
	return writeJSON(cmd, map[string]any{
		"removed": nonNil(result.Removed),
		"skipped": nonNil(result.Skipped),
		"errors":  errs,
	})
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
