package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"agilentuimf/internal/uimf"
)

func newFramesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "frames <file.uimf>",
		Short:       "List frames and scan counts of a UIMF file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := uimf.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer reader.Close()

			stats, err := reader.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("read frames: %w", err)
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, stats)
			}

			out := cmd.OutOrStdout()
			if len(stats) == 0 {
				fmt.Fprintln(out, "No frames found")
				return nil
			}

			rows := make([][]string, 0, len(stats))
			var totalScans int
			var totalPoints int64
			for _, s := range stats {
				totalScans += s.Scans
				totalPoints += s.Points
				rows = append(rows, []string{
					strconv.Itoa(s.Number),
					frameTypeLabel(s.Type),
					formatCount(s.Scans),
					formatCount(s.NonEmptyScans),
					formatCount(s.Points),
					dashIfEmpty(s.EncodingSequence),
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Frame", "Type", "Scans", "Non-empty", "Points", "Encoding"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				withFooter("", "Total", formatCount(totalScans), "", formatCount(totalPoints)),
			))
			layout := "current"
			if reader.Legacy() {
				layout = "legacy"
			}
			fmt.Fprintf(out, "Total: %s frames, %s scans, %s points (%s layout)\n",
				formatCount(len(stats)), formatCount(totalScans), formatCount(totalPoints), layout)
			return nil
		},
	}
}

func frameTypeLabel(t int) string {
	switch t {
	case 1:
		return "MS1"
	case 2:
		return "MS2"
	case 3:
		return "Calibration"
	case 4:
		return "Prescan"
	default:
		return "Unknown"
	}
}
