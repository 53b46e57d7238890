// Package cmd implements the isobmffdump CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
	runTag    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "isobmffdump",
	Short: "Inspect and remux ISO Base Media (MP4) files",
	Long: `isobmffdump inspects and remuxes ISO/IEC 14496-12 files. dump reads
the whole file into memory and prints its box tree; remux streams samples
one at a time through the library's pull/push demuxer and muxer.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initLogging()
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&runTag, "tag", uuid.NewString(), "identifier attached to log lines for this run")

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(remuxCmd)
}

// initLogging configures the default slog logger from the global flags.
func initLogging() error {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level: %s", logLevel)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler).With("tag", runTag))
	return nil
}
