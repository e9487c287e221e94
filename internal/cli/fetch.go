package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/chatharvest/internal/config"
	"github.com/ppiankov/chatharvest/internal/extract"
	"github.com/ppiankov/chatharvest/internal/harvest"
	"github.com/ppiankov/chatharvest/internal/report"
	"github.com/spf13/cobra"
)

var (
	fetchSource sourceFlags
	fetchFormat string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the chat once and show the latest comment time",
	Long:  "fetch takes one snapshot of the page, prints the chat entries it holds, and reports when the latest comment was posted. Nothing is written to disk.",
	RunE:  fetchAction,
}

func init() {
	fetchSource.register(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "terminal", "output format: terminal, json, markdown, csv")
	fetchCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	rootCmd.AddCommand(fetchCmd)
}

func fetchAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOptional(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := fetchSource.apply(cfg); err != nil {
		return err
	}

	formatter, err := pickFormatter(fetchFormat)
	if err != nil {
		return err
	}

	src, err := buildSource(cfg)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}

	ctrl, err := harvest.NewController(src, extract.New(cfg.Selectors()), nil, harvest.Options{
		MaxCycles:       1,
		ReferenceWindow: cfg.Poll.ReferenceWindow,
		KeepHistory:     true,
	}, newLogger())
	if err != nil {
		return err
	}

	res, err := ctrl.RunCycle(commandContext(cmd))
	if err != nil {
		return err
	}

	return formatter.Format(os.Stdout, report.Input{
		Source:  pageLabel(cfg),
		Entries: res.Accepted,
		Zone:    displayZone(cfg),
		Now:     time.Now(),
		Cycles:  1,
	})
}
