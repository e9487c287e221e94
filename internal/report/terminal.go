package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

// TerminalFormatter formats a report for terminal output.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Format writes one line per entry followed by the latest-comment summary.
func (f *TerminalFormatter) Format(w io.Writer, input Input) error {
	loc := zoneOf(input)

	header := fmt.Sprintf("chatharvest — %s comments from %s authors",
		humanize.Comma(int64(len(input.Entries))), humanize.Comma(int64(authorCount(input.Entries))))
	if input.Cycles > 0 {
		header += fmt.Sprintf(", %d cycles", input.Cycles)
	}
	fmt.Fprintln(w, f.bold(header))
	if input.Source != "" {
		fmt.Fprintln(w, f.dim(input.Source))
	}
	fmt.Fprintln(w)

	latest, ok := Latest(input.Entries)
	if !ok {
		fmt.Fprintln(w, "No comments found.")
		return nil
	}

	for _, e := range input.Entries {
		name := e.AuthorName
		if name == "" {
			name = "(anonymous)"
		}
		fmt.Fprintf(w, "  %s %s %s\n",
			f.dim(time.Unix(e.Timestamp, 0).In(loc).Format("15:04:05")),
			f.cyan(name+":"),
			e.Text,
		)
	}
	fmt.Fprintln(w)

	if input.Persisted {
		fmt.Fprintln(w, f.dim(fmt.Sprintf("Stored: %s new", humanize.Comma(int64(input.Inserted)))))
	}

	summary := "Latest comment at " + FormatCivil(latest.Timestamp, loc)
	if !input.Now.IsZero() {
		summary += " (" + humanize.RelTime(time.Unix(latest.Timestamp, 0), input.Now, "ago", "from now") + ")"
	}
	fmt.Fprintln(w, f.green(summary))
	return nil
}

// ANSI helpers, no-op when color=false.

func (f *TerminalFormatter) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *TerminalFormatter) green(s string) string {
	if !f.color {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func (f *TerminalFormatter) cyan(s string) string {
	if !f.color {
		return s
	}
	return "\033[36m" + s + "\033[0m"
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}
