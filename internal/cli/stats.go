package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/chatharvest/internal/config"
	"github.com/ppiankov/chatharvest/internal/report"
	"github.com/ppiankov/chatharvest/internal/store"
	"github.com/spf13/cobra"
)

var (
	statsDB     string
	statsFormat string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the database holds",
	RunE:  statsAction,
}

func init() {
	statsCmd.Flags().StringVar(&statsDB, "db", "", "SQLite database (default from config)")
	statsCmd.Flags().StringVar(&statsFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(statsCmd)
}

func statsAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOptional(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath, err := resolveDBPath(statsDB, cfg)
	if err != nil {
		return err
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	st, err := db.Stats(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	switch statsFormat {
	case "json":
		return printStatsJSON(os.Stdout, st, displayZone(cfg))
	case "terminal", "":
		printStats(os.Stdout, dbPath, st, displayZone(cfg), time.Now())
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", statsFormat)
	}
}

type jsonStats struct {
	Entries int    `json:"entries"`
	Runs    int    `json:"runs"`
	Authors int    `json:"authors"`
	First   string `json:"first,omitempty"`
	Last    string `json:"last,omitempty"`
}

func printStatsJSON(w io.Writer, st store.Stats, loc *time.Location) error {
	out := jsonStats{
		Entries: st.Entries,
		Runs:    st.Runs,
		Authors: st.Authors,
	}
	if st.Entries > 0 {
		out.First = report.FormatCivil(st.First, loc)
		out.Last = report.FormatCivil(st.Last, loc)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printStats(w io.Writer, path string, st store.Stats, loc *time.Location, now time.Time) {
	fmt.Fprintf(w, "chatharvest stats — %s\n\n", path)

	if st.Entries == 0 {
		fmt.Fprintf(w, "No comments recorded yet (%d runs). Run 'chatharvest record --db %s' first.\n", st.Runs, path)
		return
	}

	fmt.Fprintf(w, "  Comments:  %s\n", humanize.Comma(int64(st.Entries)))
	fmt.Fprintf(w, "  Authors:   %s\n", humanize.Comma(int64(st.Authors)))
	fmt.Fprintf(w, "  Runs:      %d\n", st.Runs)
	fmt.Fprintf(w, "  First:     %s\n", report.FormatCivil(st.First, loc))
	fmt.Fprintf(w, "  Latest:    %s (%s)\n", report.FormatCivil(st.Last, loc),
		humanize.RelTime(time.Unix(st.Last, 0), now, "ago", "from now"))
	fmt.Fprintf(w, "  Span:      %s\n", formatSpan(time.Duration(st.Last-st.First)*time.Second))
}

func formatSpan(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	}
}
