// Package cmd provides the CLI commands for Lodestone.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lodestone-kb/lodestone/internal/logging"
	"github.com/lodestone-kb/lodestone/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the lodestone CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lodestone",
		Short: "Hybrid retrieval engine for knowledge bases",
		Long: `Lodestone retrieves from knowledge-base datasources with hybrid search:
BM25 keyword matching, embedding similarity, native datasource hybrid
queries, and cross-encoder reranking.

Configure datasources in lodestone.yaml, ingest documents with
'lodestone ingest', then query with 'lodestone search'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("lodestone version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lodestone.yaml", "Path to config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = teardownLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg.Level = "debug"
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup

	if debugMode {
		slog.Debug("debug logging enabled", slog.String("version", version.Version))
	}
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
