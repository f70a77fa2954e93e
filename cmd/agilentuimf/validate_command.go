package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agilentuimf/internal/validation"
)

type reportJSON struct {
	Path           string  `json:"path"`
	Exists         bool    `json:"exists"`
	SizeBytes      int64   `json:"size_bytes"`
	ContentChecked bool    `json:"content_checked"`
	HasSpectra     bool    `json:"has_spectra"`
	Valid          bool    `json:"valid"`
	Message        string  `json:"message,omitempty"`
	Evaluation     string  `json:"evaluation,omitempty"`
	SizeKB         float64 `json:"size_kb"`
}

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.uimf>...",
		Short: "Check that UIMF files exist, meet the size floor and hold spectra",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			v := validation.NewValidator(
				validation.WithThresholds(cfg.Validation.MinSizeKB, cfg.Validation.SmallSizeKB),
			)

			reports := make([]validation.Report, 0, len(args))
			invalid := 0
			for _, path := range args {
				report, err := v.Validate(cmd.Context(), path)
				if err != nil {
					invalid++
				}
				reports = append(reports, report)
			}

			if ctx.JSONMode() {
				payload := make([]reportJSON, 0, len(reports))
				for _, r := range reports {
					payload = append(payload, reportJSON{
						Path:           r.Path,
						Exists:         r.Exists,
						SizeBytes:      r.SizeBytes,
						SizeKB:         r.SizeKB,
						ContentChecked: r.ContentChecked,
						HasSpectra:     r.HasSpectra,
						Valid:          r.Valid,
						Message:        r.Message,
						Evaluation:     r.Evaluation,
					})
				}
				if err := writeJSON(cmd, payload); err != nil {
					return err
				}
			} else {
				renderReports(cmd, reports)
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d files failed validation", invalid, len(args))
			}
			return nil
		},
	}
}

func renderReports(cmd *cobra.Command, reports []validation.Report) {
	w := newReportWriter(cmd.OutOrStdout())
	for i, r := range reports {
		if i > 0 {
			w.blank()
		}
		w.section(r.Path)
		if !r.Exists {
			w.status("Exists", statusError, r.Message)
			continue
		}
		w.status("Exists", statusOK, "")
		w.field("Size", validation.FormatSize(r.SizeKB))
		if r.HasSpectra {
			w.status("Content", statusOK, "spectra present")
		} else {
			w.status("Content", statusError, r.Message)
		}
		if r.Evaluation != "" {
			w.status("Evaluation", statusWarn, r.Evaluation)
		}
	}
}
