package harvest

import "github.com/ppiankov/chatharvest/internal/chat"

// DefaultReferenceWindow is the number of trailing history entries consulted
// for duplicate suppression.
const DefaultReferenceWindow = 500

// ReferenceWindow returns the trailing k entries of history.
// A non-positive k selects DefaultReferenceWindow.
func ReferenceWindow(history []chat.Entry, k int) []chat.Entry {
	if k <= 0 {
		k = DefaultReferenceWindow
	}
	if len(history) <= k {
		return history
	}
	return history[len(history)-k:]
}

// Dedupe removes entries whose ID appears in reference. Survivors keep their
// input order. IDs older than the reference slice are not detected.
func Dedupe(entries, reference []chat.Entry) []chat.Entry {
	if len(reference) == 0 {
		return entries
	}

	seen := make(map[string]struct{}, len(reference))
	for _, r := range reference {
		seen[r.ID] = struct{}{}
	}

	var out []chat.Entry
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		out = append(out, e)
	}
	return out
}
