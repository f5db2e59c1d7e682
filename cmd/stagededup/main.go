// Command stagededup appends the records of incoming CSV files that are not
// yet staged to a staging area, one new artifact per input.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acme-corp/staging-pipeline/internal/config"
	"github.com/acme-corp/staging-pipeline/internal/logger"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Stop between steps on Ctrl+C or SIGTERM; an artifact put that has
	// started is left to finish or fail on its own.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "Received signal %v, shutting down...\n", sig)
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Every subcommand shares one Config
// bound to the persistent flags.
func newRootCmd() *cobra.Command {
	cfg := config.Default()
	root := &cobra.Command{
		Use:   "stagededup",
		Short: "Stage new CSV records, skipping keys that are already staged",
		Long: `stagededup reads incoming CSV files, drops rows that are corrupt or have no
key, removes records whose key already exists in the staging area and writes
what remains as a new, uniquely named artifact. Existing artifacts are never
modified.

Settings come from flags, then STAGEDUP_* environment variables, then the
TOML file given with --config.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")
	cfg.Flags(root.PersistentFlags())

	root.AddCommand(newRunCmd(cfg), newCheckCmd(cfg), newVersionCmd())
	return root
}

// load resolves cfg from the command's flags, environment and config file.
func load(cmd *cobra.Command, cfg *config.Config) error {
	return cfg.Load(cmd.Flags())
}

func newLogger(cmd *cobra.Command, cfg *config.Config) logger.Logger {
	if cfg.Verbose {
		return logger.NewVerboseLogger(cmd.ErrOrStderr())
	}
	return logger.NewStandardLogger(cmd.ErrOrStderr())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stagededup %s\n", version)
		},
	}
}
