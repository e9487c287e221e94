package report

import (
	"encoding/json"
	"io"
	"time"
)

type jsonReport struct {
	Meta    jsonMeta    `json:"meta"`
	Entries []jsonEntry `json:"entries"`
}

type jsonMeta struct {
	Source   string `json:"source,omitempty"`
	Count    int    `json:"count"`
	Authors  int    `json:"authors"`
	Cycles   int    `json:"cycles,omitempty"`
	Inserted *int   `json:"inserted,omitempty"`
	Latest   string `json:"latest,omitempty"`
	LatestTS int64  `json:"latest_ts,omitempty"`
}

type jsonEntry struct {
	Timestamp  int64  `json:"timestamp"`
	Time       string `json:"time"`
	ID         string `json:"id"`
	AuthorName string `json:"author_name,omitempty"`
	AuthorID   string `json:"author_id,omitempty"`
	Text       string `json:"text"`
}

// JSONFormatter formats a report as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the report as JSON to w.
func (f *JSONFormatter) Format(w io.Writer, input Input) error {
	loc := zoneOf(input)

	out := jsonReport{
		Meta: jsonMeta{
			Source:  input.Source,
			Count:   len(input.Entries),
			Authors: authorCount(input.Entries),
			Cycles:  input.Cycles,
		},
		Entries: make([]jsonEntry, 0, len(input.Entries)),
	}
	if input.Persisted {
		n := input.Inserted
		out.Meta.Inserted = &n
	}
	if latest, ok := Latest(input.Entries); ok {
		out.Meta.Latest = FormatCivil(latest.Timestamp, loc)
		out.Meta.LatestTS = latest.Timestamp
	}

	for _, e := range input.Entries {
		out.Entries = append(out.Entries, jsonEntry{
			Timestamp:  e.Timestamp,
			Time:       time.Unix(e.Timestamp, 0).In(loc).Format(time.RFC3339),
			ID:         e.ID,
			AuthorName: e.AuthorName,
			AuthorID:   e.AuthorID,
			Text:       e.Text,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
