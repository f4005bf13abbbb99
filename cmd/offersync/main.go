package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/offersync/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "offersync",
		Short:         "Sync casino offers, cruises and loyalty status from the cruise line sites",
		Long:          "offersync drives a logged-in browser tab through the casino offers, upcoming cruises, courtesy holds and loyalty pages, captures each page's data and exports the offers as CSV.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			initLogger(config.Load().Log)
		},
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newExtractCmd(),
		newExportCmd(),
		newVocabCmd(),
	)
	return rootCmd
}

// initLogger configures slog based on the LogConfig. Logs go to stderr so
// subcommands can write data to stdout.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
