package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/acme-corp/staging-pipeline/internal/config"
	"github.com/acme-corp/staging-pipeline/internal/ingestion"
	"github.com/acme-corp/staging-pipeline/internal/storage"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newCheckCmd(cfg *config.Config) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "check LOCATION",
		Short: "Read a file or prefix and report what the pipeline would see",
		Long: `Read LOCATION (a key, or a prefix ending in "/") the way run reads its inputs
and print the inferred schema, the valid record count, the first rows and
every corrupt row. Nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := load(cmd, cfg); err != nil {
				return err
			}
			store, err := storage.Open(cfg.Root, storage.Options{
				Region:    cfg.AWS.Region,
				Endpoint:  cfg.AWS.Endpoint,
				PathStyle: cfg.AWS.PathStyle,
			})
			if err != nil {
				return errors.Wrap(err, "opening storage root")
			}

			r := ingestion.NewReader(store, newLogger(cmd, cfg))
			r.Key = cfg.KeyField
			r.InferSchema = cfg.InferSchema
			r.Parallelism = cfg.Parallelism

			res := r.Read(cmd.Context(), args[0])
			printCheck(cmd.OutOrStdout(), store.URL(args[0]), res, limit)
			if res.Status == ingestion.ReadFailed {
				return res.Err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of records to print.")
	return cmd
}

func printCheck(w io.Writer, location string, res ingestion.ReadResult, limit int) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "%s %s\n", cyan("Location:"), location)
	fmt.Fprintf(w, "  status: %s  records: %d  corrupt: %d  empty key: %d\n",
		res.Status, res.Batch.Len(), res.Corrupt, res.EmptyKey)
	if res.Err != nil {
		fmt.Fprintf(w, "  error: %v\n", res.Err)
	}
	if res.Status == ingestion.ReadOK && !res.KeyFiltered {
		fmt.Fprintf(w, "  %s key column not found\n", yellow("warning:"))
	}

	if len(res.Batch.Schema) > 0 {
		fmt.Fprintf(w, "%s\n", cyan("Schema:"))
		for _, f := range res.Batch.Schema {
			fmt.Fprintf(w, "  %-24s %s\n", f.Name, f.Type)
		}
	}

	if n := min(limit, res.Batch.Len()); n > 0 {
		fmt.Fprintf(w, "%s\n", cyan("Records:"))
		names := res.Batch.Schema.Names()
		fmt.Fprintf(w, "  %s\n", strings.Join(names, " | "))
		for _, rec := range res.Batch.Records[:n] {
			vals := make([]string, len(names))
			for i, name := range names {
				vals[i] = ingestion.FormatValue(rec.Data[name])
			}
			fmt.Fprintf(w, "  %s\n", strings.Join(vals, " | "))
		}
	}

	if len(res.Batch.Corrupt) > 0 {
		fmt.Fprintf(w, "%s\n", yellow("Corrupt rows:"))
		for _, row := range res.Batch.Corrupt {
			fmt.Fprintf(w, "  %s:%d: %s\n", row.Source, row.Line, row.Reason)
		}
	}
}
