package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/chatharvest/internal/chat"
	"github.com/ppiankov/chatharvest/internal/config"
	"github.com/ppiankov/chatharvest/internal/report"
	"github.com/ppiankov/chatharvest/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportDB     string
	exportSince  string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print comments recorded in the database",
	RunE:  exportAction,
}

func init() {
	exportCmd.Flags().StringVar(&exportDB, "db", "", "SQLite database (default from config)")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only comments posted within this window (e.g. 2h, 7d)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "terminal", "output format: terminal, json, markdown, csv")
	exportCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	rootCmd.AddCommand(exportCmd)
}

func exportAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOptional(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath, err := resolveDBPath(exportDB, cfg)
	if err != nil {
		return err
	}

	formatter, err := pickFormatter(exportFormat)
	if err != nil {
		return err
	}

	var since time.Time
	if exportSince != "" {
		d, err := parseDuration(exportSince)
		if err != nil {
			return fmt.Errorf("parse --since: %w", err)
		}
		since = time.Now().Add(-d)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	stored, err := db.GetEntries(commandContext(cmd), since)
	if err != nil {
		return err
	}
	entries := make([]chat.Entry, len(stored))
	for i, e := range stored {
		entries[i] = e.Entry
	}

	return formatter.Format(os.Stdout, report.Input{
		Source:  dbPath,
		Entries: entries,
		Zone:    displayZone(cfg),
		Now:     time.Now(),
	})
}

// resolveDBPath prefers the flag, then the config. A database that does not
// exist yet is an error, since opening it would create an empty one.
func resolveDBPath(flag string, cfg *config.Config) (string, error) {
	path := flag
	if path == "" {
		path = cfg.Storage.DBPath
	}
	if path == "" {
		return "", errors.New("no database: pass --db or set storage.db_path in config.yaml")
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("database %s: %w", path, err)
	}
	return path, nil
}
