package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/chatharvest/internal/config"
	"github.com/ppiankov/chatharvest/internal/source"
	"github.com/ppiankov/chatharvest/internal/store"
	"github.com/spf13/cobra"
)

const staleDays = 7

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, renderer, and storage",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printInfo("config directory %s missing, defaults apply (run 'chatharvest init')", configDir)
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.LoadOptional(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config (source %s, %d cycles every %s)",
		cfg.Source.Mode, cfg.Poll.MaxCycles, cfg.Poll.Interval.Duration)

	// Source
	if !checkSource(cfg) {
		ok = false
	}

	// CSV destination
	if cfg.Storage.WriteCSV {
		dir := filepath.Dir(cfg.Storage.CSVPath)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			printInfo("csv directory %s does not exist yet, it will be created", dir)
		} else {
			printCheck(true, "csv %s", cfg.Storage.CSVPath)
		}
	}

	// Database
	if cfg.Storage.DBPath != "" {
		db, err := store.Open(cfg.Storage.DBPath)
		if err != nil {
			printCheck(false, "database: %v", err)
			ok = false
		} else {
			defer func() { _ = db.Close() }()
			printCheck(true, "database %s", cfg.Storage.DBPath)
			checkStoreHealth(commandContext(cmd), db)
		}
	}

	// Metrics
	if cfg.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			printCheck(false, "metrics.listen: %v", err)
			ok = false
		} else {
			printCheck(true, "metrics on %s", cfg.Metrics.Listen)
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func checkSource(cfg *config.Config) bool {
	switch cfg.Source.Mode {
	case config.ModeFile:
		info, err := os.Stat(cfg.Source.File)
		if err != nil {
			printCheck(false, "snapshot file: %v", err)
			return false
		}
		if info.IsDir() {
			printCheck(false, "snapshot file: %s is a directory", cfg.Source.File)
			return false
		}
		printCheck(true, "snapshot file %s", cfg.Source.File)
		if cfg.Source.Watch {
			printInfo("watching %s for changes between cycles", cfg.Source.File)
		}
		return true

	case config.ModeHTTP:
		if cfg.Source.URL == "" {
			printInfo("source.url not set, pass --url to fetch and record")
		} else {
			printCheck(true, "page %s", cfg.Source.URL)
		}
		if cfg.Source.CookieEnv != "" && cfg.Source.Cookie == "" {
			printInfo("%s is empty, requests go out without a cookie", cfg.Source.CookieEnv)
		}
		return true

	default:
		argv := cfg.Source.Command
		if len(argv) == 0 {
			argv = source.DefaultRenderCommand
		}
		if _, err := exec.LookPath(argv[0]); err != nil {
			printCheck(false, "renderer %s not found (install it or set source.command)", argv[0])
			return false
		}
		printCheck(true, "renderer %s", argv[0])
		if cfg.Source.URL == "" {
			printInfo("source.url not set, pass --url to fetch and record")
		}
		return true
	}
}

// checkStoreHealth prints info-level notes about the recorded data. Never fails.
func checkStoreHealth(ctx context.Context, db *store.Store) {
	st, err := db.Stats(ctx)
	if err != nil || st.Entries == 0 {
		return
	}

	last := time.Unix(st.Last, 0)
	if time.Since(last) > staleDays*24*time.Hour {
		printInfo("stale: latest comment recorded %s", humanize.Time(last))
	}
	if st.Runs > 0 && st.Entries/st.Runs == 0 {
		printInfo("runs outnumber comments (%d runs, %d comments), check the selectors", st.Runs, st.Entries)
	}
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
