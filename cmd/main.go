package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/config"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:          "nrc-brackets",
	Short:        "Tournament progression engine for robot combat events",
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error); overrides LOG_LEVEL")
	rootCmd.AddCommand(newServeCmd(), newSimulateCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(fallback slog.Level) (*slog.Logger, error) {
	level := fallback
	if logLevel != "" {
		parsed, err := config.ParseLogLevel(logLevel)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, nil
}
