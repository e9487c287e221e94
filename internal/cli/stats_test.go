package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/ppiankov/chatharvest/internal/report"
	"github.com/ppiankov/chatharvest/internal/store"
)

func TestPrintStats(t *testing.T) {
	st := store.Stats{
		Entries: 1234,
		Runs:    3,
		Authors: 56,
		First:   chatTS,
		Last:    chatTS + 2*3600 + 15*60,
	}
	now := time.Unix(st.Last, 0).Add(10 * time.Minute)

	var buf bytes.Buffer
	printStats(&buf, "chat.db", st, report.DefaultZone(), now)
	out := buf.String()

	requireContains(t, out, "chatharvest stats — chat.db")
	requireContains(t, out, "Comments:  1,234")
	requireContains(t, out, "Authors:   56")
	requireContains(t, out, "Runs:      3")
	requireContains(t, out, "First:     2026-02-16_19:00")
	requireContains(t, out, "Latest:    2026-02-16_21:15 (10 minutes ago)")
	requireContains(t, out, "Span:      2h15m")
}

func TestPrintStats_Empty(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, "chat.db", store.Stats{Runs: 1}, report.DefaultZone(), time.Now())

	out := buf.String()
	requireContains(t, out, "No comments recorded yet (1 runs)")
	requireNotContains(t, out, "Comments:")
}

func TestPrintStatsJSON(t *testing.T) {
	var buf bytes.Buffer
	err := printStatsJSON(&buf, store.Stats{Entries: 2, Runs: 1, Authors: 2, First: chatTS, Last: chatTS + 65}, report.DefaultZone())
	if err != nil {
		t.Fatalf("print: %v", err)
	}

	var got jsonStats
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Entries != 2 || got.Runs != 1 || got.Authors != 2 {
		t.Errorf("stats = %+v", got)
	}
	if got.First != "2026-02-16_19:00" || got.Last != "2026-02-16_19:01" {
		t.Errorf("first/last = %q/%q", got.First, got.Last)
	}
}

func TestStatsAction(t *testing.T) {
	resetCLIState(t)
	statsDB = seedStore(t, seededEntries())

	out, err := captureStdout(t, func() error {
		return statsAction(nil, nil)
	})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	requireContains(t, out, "Comments:  2")
	requireContains(t, out, "Authors:   2")
	requireContains(t, out, "Runs:      1")
}

func TestStatsAction_UnknownFormat(t *testing.T) {
	resetCLIState(t)
	statsDB = seedStore(t, seededEntries())
	statsFormat = "yaml"

	_, err := captureStdout(t, func() error {
		return statsAction(nil, nil)
	})
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
		err   bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"48h", 48 * time.Hour, false},
		{"0d", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.input)
		if tt.err {
			if err == nil {
				t.Errorf("parseDuration(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDuration(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFormatSpan(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{12 * time.Minute, "12m"},
		{2*time.Hour + 5*time.Minute, "2h05m"},
		{72 * time.Hour, "3 days"},
	}
	for _, tt := range tests {
		if got := formatSpan(tt.d); got != tt.want {
			t.Errorf("formatSpan(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
