package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"agilentuimf/internal/multiplex"
)

type classifyJSON struct {
	Path      string   `json:"path"`
	Encoding  string   `json:"encoding"`
	BitWidth  int      `json:"bit_width,omitempty"`
	Source    string   `json:"source,omitempty"`
	Sequence  string   `json:"sequence,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
	Detail    string   `json:"detail,omitempty"`
}

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "classify <file.uimf>...",
		Short:       "Report whether UIMF files were acquired with multiplexed encoding",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]classifyJSON, 0, len(args))
			failed := 0
			for _, path := range args {
				result, err := multiplex.ClassifyFile(cmd.Context(), path)
				if err != nil {
					failed++
				}
				results = append(results, classifyJSON{
					Path:      path,
					Encoding:  result.Kind.String(),
					BitWidth:  result.BitWidth,
					Source:    string(result.Source),
					Sequence:  result.Sequence,
					Conflicts: result.Conflicts,
					Detail:    result.Detail,
				})
			}

			if ctx.JSONMode() {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					width := "-"
					if r.BitWidth > 0 {
						width = strconv.Itoa(r.BitWidth)
					}
					note := r.Sequence
					if r.Detail != "" {
						note = r.Detail
					} else if len(r.Conflicts) > 0 {
						note = fmt.Sprintf("%s (also saw %s)", r.Sequence, strings.Join(r.Conflicts, ", "))
					}
					rows = append(rows, []string{filepath.Base(r.Path), r.Encoding, width, dashIfEmpty(r.Source), dashIfEmpty(note)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"File", "Encoding", "Bits", "Source", "Sequence"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be classified", failed, len(args))
			}
			return nil
		},
	}
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
