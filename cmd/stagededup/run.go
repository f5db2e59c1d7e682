package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/acme-corp/staging-pipeline/internal/config"
	"github.com/acme-corp/staging-pipeline/internal/metrics"
	"github.com/acme-corp/staging-pipeline/internal/pipeline"
	"github.com/acme-corp/staging-pipeline/internal/storage"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newRunCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run INPUT.csv...",
		Short: "Stage the new records of one or more incoming files",
		Long: `Process each input in order. Inputs are keys relative to --root and must
name .csv files. A run that finds nothing new, or whose input has no valid
records, still exits 0; only a failure to write a new artifact is an error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateInputs(args); err != nil {
				return err
			}
			if err := load(cmd, cfg); err != nil {
				return err
			}
			return runPipeline(cmd, cfg, args)
		},
	}
}

// validateInputs requires every input to name a CSV file.
func validateInputs(inputs []string) error {
	for _, in := range inputs {
		if !strings.HasSuffix(strings.ToLower(in), ".csv") {
			return errors.Errorf("input must be a .csv file: %s", in)
		}
	}
	return nil
}

func runPipeline(cmd *cobra.Command, cfg *config.Config, inputs []string) error {
	store, err := storage.Open(cfg.Root, storage.Options{
		Region:    cfg.AWS.Region,
		Endpoint:  cfg.AWS.Endpoint,
		PathStyle: cfg.AWS.PathStyle,
	})
	if err != nil {
		return errors.Wrap(err, "opening storage root")
	}

	collector := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	if err := collector.Register(reg); err != nil {
		return errors.Wrap(err, "registering metrics")
	}

	log := newLogger(cmd, cfg)
	outcomes, runErr := pipeline.Run(cmd.Context(), cfg, pipeline.Deps{
		Store:   store,
		Log:     log,
		Metrics: collector,
	}, inputs...)

	printOutcomes(cmd.OutOrStdout(), outcomes)

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
			log.Warnf("Could not write metrics to %s: %v", cfg.MetricsFile, err)
		}
	}
	if cfg.Verbose {
		if snap, err := collector.JSON(); err == nil {
			log.Debugf("Final metrics:\n%s", snap)
		}
	}
	return runErr
}

func printOutcomes(w io.Writer, outcomes []*pipeline.Outcome) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	for _, out := range outcomes {
		paint := gray
		switch out.Status {
		case pipeline.StatusWritten:
			paint = green
		case pipeline.StatusNoValidInput, pipeline.StatusCancelled:
			paint = yellow
		case pipeline.StatusWriteFailed:
			paint = red
		}
		fmt.Fprintf(w, "%s %s\n", paint(fmt.Sprintf("[%s]", out.Status)), out.Input)
		fmt.Fprintf(w, "  incoming: %d  corrupt: %d  empty key: %d  already staged: %d  duplicates: %d  written: %d\n",
			out.Incoming, out.Corrupt, out.EmptyKey, out.AlreadyStaged, out.IntraBatchDuplicates, out.Written)
		fmt.Fprintf(w, "  staging area: %s\n", out.Staging)
		if out.ArtifactPath != "" {
			fmt.Fprintf(w, "  artifact: %s\n", out.ArtifactPath)
		}
		if out.QuarantinePath != "" {
			fmt.Fprintf(w, "  quarantine: %s\n", out.QuarantinePath)
		}
		if out.InputErr != nil {
			fmt.Fprintf(w, "  %s %v\n", red("input:"), out.InputErr)
		}
		if out.StagingErr != nil {
			fmt.Fprintf(w, "  %s %v\n", yellow("staging:"), out.StagingErr)
		}
	}
}
