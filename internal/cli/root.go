// Package cli provides the command-line interface for chatharvest.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:          "chatharvest",
	Short:        "Harvest live stream chat without duplicates",
	Long:         "chatharvest polls the chat widget of a live stream page, keeps only messages it has not seen yet, and appends them to CSV and SQLite.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("chatharvest %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", defaultConfigDir(), "config directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every polling cycle")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatharvest"
	}
	return filepath.Join(home, ".chatharvest")
}

// newLogger returns the diagnostics logger. Cycle progress is logged at info
// level, which is only shown with --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
