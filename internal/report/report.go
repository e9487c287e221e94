// Package report renders harvested chat entries for people and scripts.
package report

import (
	"io"
	"time"

	"github.com/ppiankov/chatharvest/internal/chat"
)

// CivilLayout is the layout used for human-readable entry times.
const CivilLayout = "2006-01-02_15:04"

// Default display zone: UTC+9.
const (
	DefaultOffsetHours = 9
	DefaultZoneName    = "JST"
)

// Input is everything a formatter needs.
type Input struct {
	Source    string       // page URL or store path the entries came from
	Entries   []chat.Entry // oldest first
	Zone      *time.Location
	Now       time.Time // reference for relative ages; zero disables them
	Cycles    int       // polling cycles behind the entries, 0 if unknown
	Persisted bool      // entries went to durable storage
	Inserted  int       // entries new to durable storage, when Persisted
}

// Formatter writes a formatted report to w.
type Formatter interface {
	Format(w io.Writer, input Input) error
}

// Zone returns a fixed zone offsetHours east of UTC.
func Zone(offsetHours int, name string) *time.Location {
	return time.FixedZone(name, offsetHours*60*60)
}

// DefaultZone returns the UTC+9 display zone.
func DefaultZone() *time.Location {
	return Zone(DefaultOffsetHours, DefaultZoneName)
}

// FormatCivil converts a unix timestamp to civil time in loc, e.g. 2026-02-16_19:00.
func FormatCivil(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = DefaultZone()
	}
	return time.Unix(ts, 0).In(loc).Format(CivilLayout)
}

// Latest returns the last entry, the one whose timestamp becomes the watermark.
func Latest(entries []chat.Entry) (chat.Entry, bool) {
	if len(entries) == 0 {
		return chat.Entry{}, false
	}
	return entries[len(entries)-1], true
}

func authorCount(entries []chat.Entry) int {
	seen := make(map[string]struct{})
	for _, e := range entries {
		key := e.AuthorID
		if key == "" {
			key = e.AuthorName
		}
		if key == "" {
			continue
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

func zoneOf(input Input) *time.Location {
	if input.Zone == nil {
		return DefaultZone()
	}
	return input.Zone
}
