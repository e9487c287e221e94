// Package privacy scrubs chat entries before they reach durable storage.
package privacy

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/ppiankov/chatharvest/internal/chat"
	"github.com/ppiankov/chatharvest/internal/sink"
)

const redactedPlaceholder = "[REDACTED]"

// authorNamespace seeds the stable pseudonyms handed out by Anonymize.
var authorNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("chatharvest:author"))

// Compile compiles a list of regex pattern strings into compiled regexps.
// Returns an error if any pattern is invalid.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Apply replaces all matches of the compiled patterns in text with [REDACTED].
func Apply(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// Pseudonym maps an author ID to a stable opaque ID and display name.
// Empty IDs stay empty.
func Pseudonym(authorID string) (id, name string) {
	if authorID == "" {
		return "", ""
	}
	u := uuid.NewSHA1(authorNamespace, []byte(authorID))
	return u.String(), "user-" + u.String()[:8]
}

// Filter rewrites entry text and authorship according to the privacy settings.
type Filter struct {
	patterns  []*regexp.Regexp
	anonymize bool
}

// NewFilter compiles patterns and returns a filter. A filter with no
// patterns and anonymize off passes entries through untouched.
func NewFilter(patterns []string, anonymize bool) (*Filter, error) {
	compiled, err := Compile(patterns)
	if err != nil {
		return nil, err
	}
	return &Filter{patterns: compiled, anonymize: anonymize}, nil
}

// Active reports whether the filter changes anything.
func (f *Filter) Active() bool {
	return f != nil && (len(f.patterns) > 0 || f.anonymize)
}

// Entries returns scrubbed copies of entries. Timestamps and message IDs are kept.
func (f *Filter) Entries(entries []chat.Entry) []chat.Entry {
	if !f.Active() {
		return entries
	}
	out := make([]chat.Entry, len(entries))
	for i, e := range entries {
		e.Text = Apply(e.Text, f.patterns)
		if f.anonymize {
			key := e.AuthorID
			if key == "" {
				key = e.AuthorName
			}
			e.AuthorID, e.AuthorName = Pseudonym(key)
		}
		out[i] = e
	}
	return out
}

// Wrap returns a sink that scrubs every batch before handing it to next.
func (f *Filter) Wrap(next sink.Sink) sink.Sink {
	if !f.Active() {
		return next
	}
	return &filteredSink{filter: f, next: next}
}

type filteredSink struct {
	filter *Filter
	next   sink.Sink
}

func (s *filteredSink) Append(ctx context.Context, entries []chat.Entry) error {
	return s.next.Append(ctx, s.filter.Entries(entries))
}
