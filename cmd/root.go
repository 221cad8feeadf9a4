// Package cmd implements the vt-itest command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Logger is the shared logger instance for all commands
	Logger *logrus.Logger

	rootCmd = &cobra.Command{
		Use:   "vt-itest",
		Short: "Integration-test orchestrator for the variant transforms pipeline",
		Long: `vt-itest launches the variant transforms pipeline against known inputs,
waits for each job to finish, and validates the resulting tables with
templated queries.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize the shared logger
	Logger = logrus.New()
	Logger.SetLevel(logLevelFromEnv())
}

// logLevelFromEnv reads LOG_LEVEL, defaulting to info when unset or
// unparseable.
func logLevelFromEnv() logrus.Level {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		return logrus.InfoLevel
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		// Can't use Logger here since it might not be set up yet
		fmt.Fprintf(os.Stderr, "Invalid LOG_LEVEL '%s', defaulting to 'info'\n", logLevel)
		return logrus.InfoLevel
	}

	return level
}

// runLogger returns the shared logger for a command run. The verbose
// flag forces debug logging regardless of LOG_LEVEL.
func runLogger(verbose bool) *logrus.Logger {
	if verbose {
		Logger.SetLevel(logrus.DebugLevel)
	}

	return Logger
}
