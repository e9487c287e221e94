package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// MarkdownFormatter formats a report as a Markdown chat log.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes the report as Markdown to w.
func (f *MarkdownFormatter) Format(w io.Writer, input Input) error {
	loc := zoneOf(input)

	fmt.Fprintf(w, "# chatharvest log\n\n")
	if input.Source != "" {
		fmt.Fprintf(w, "Source: <%s>\n\n", input.Source)
	}
	fmt.Fprintf(w, "%d comments from %d authors\n\n", len(input.Entries), authorCount(input.Entries))

	latest, ok := Latest(input.Entries)
	if !ok {
		fmt.Fprintln(w, "No comments found.")
		return nil
	}

	day := ""
	for _, e := range input.Entries {
		t := time.Unix(e.Timestamp, 0).In(loc)
		if d := t.Format("2006-01-02"); d != day {
			if day != "" {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "## %s\n\n", d)
			day = d
		}
		name := e.AuthorName
		if name == "" {
			name = "anonymous"
		}
		fmt.Fprintf(w, "- `%s` **%s**: %s\n", t.Format("15:04:05"), escapeMarkdown(name), escapeMarkdown(e.Text))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "*Latest comment at %s*\n", FormatCivil(latest.Timestamp, loc))
	return nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"\n", " ",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
