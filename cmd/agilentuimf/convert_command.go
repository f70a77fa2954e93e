package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"agilentuimf/internal/conversion"
)

type outcomeJSON struct {
	RunID      string  `json:"run_id"`
	Dataset    string  `json:"dataset"`
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	Evaluation string  `json:"evaluation,omitempty"`
	Category   string  `json:"category,omitempty"`
	Progress   float64 `json:"progress"`
	RemotePath string  `json:"remote_path,omitempty"`
	Encoding   string  `json:"encoding,omitempty"`
	BitWidth   int     `json:"bit_width,omitempty"`
	ElapsedMS  int64   `json:"elapsed_ms"`
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var remoteDir string
	var converterPath string
	var maxRuntime time.Duration

	cmd := &cobra.Command{
		Use:   "convert <dataset>",
		Short: "Convert one Agilent .d dataset to UIMF",
		Long: `Convert one Agilent .d dataset to UIMF.

The dataset is copied from <remote_root>/<dataset>/<dataset>.d (or --remote-dir)
into the work directory, converted with the external AgilentToUIMFConverter,
copied back next to the source and validated there.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}

			req := conversion.NewRequest(cfg, args[0], strings.TrimSpace(remoteDir))
			if path := strings.TrimSpace(converterPath); path != "" {
				req.ConverterPath = path
			}
			if maxRuntime > 0 {
				req.MaxRuntime = maxRuntime
			}

			runner := conversion.NewRunner(cfg, conversion.WithLogger(logger))
			outcome := runner.Run(cmd.Context(), req)

			if ctx.JSONMode() {
				if err := writeJSON(cmd, toOutcomeJSON(outcome)); err != nil {
					return err
				}
			} else {
				renderOutcome(cmd, outcome)
			}

			if outcome.Success {
				return nil
			}
			if err := cmd.Context().Err(); err != nil {
				return fmt.Errorf("conversion of %s interrupted: %w", outcome.Dataset, context.Canceled)
			}
			return fmt.Errorf("conversion of %s failed (%s)", outcome.Dataset, outcome.Category)
		},
	}

	cmd.Flags().StringVar(&remoteDir, "remote-dir", "", "Remote dataset directory (defaults to <remote_root>/<dataset>)")
	cmd.Flags().StringVar(&converterPath, "converter", "", "Override converter.path for this run")
	cmd.Flags().DurationVar(&maxRuntime, "max-runtime", 0, "Override converter.max_runtime_minutes for this run")
	return cmd
}

func toOutcomeJSON(o conversion.Outcome) outcomeJSON {
	payload := outcomeJSON{
		RunID:      o.RunID,
		Dataset:    o.Dataset,
		Success:    o.Success,
		Message:    o.Message,
		Evaluation: o.Evaluation,
		Category:   o.Category,
		Progress:   o.Progress,
		RemotePath: o.RemotePath,
		ElapsedMS:  o.Elapsed.Milliseconds(),
	}
	if o.Encoding != nil {
		payload.Encoding = o.Encoding.Kind.String()
		payload.BitWidth = o.Encoding.BitWidth
	}
	return payload
}

func renderOutcome(cmd *cobra.Command, o conversion.Outcome) {
	w := newReportWriter(cmd.OutOrStdout())

	w.section("Conversion " + o.Dataset)
	if o.Success {
		w.status("Result", statusOK, o.Message)
	} else {
		w.status("Result", statusError, o.Message)
		w.field("Category", o.Category)
	}
	if o.Evaluation != "" {
		w.status("Evaluation", statusWarn, o.Evaluation)
	}
	w.field("Progress", fmt.Sprintf("%.1f%%", o.Progress))
	if o.RemotePath != "" {
		w.field("Output", o.RemotePath)
	}
	if o.Encoding != nil {
		w.field("Encoding", o.Encoding.String())
	}
	w.field("Elapsed", formatElapsed(o.Elapsed))
	w.field("Run ID", o.RunID)
}
