// Package chat defines the chat entry model shared by extraction, harvesting and storage.
package chat

import "strconv"

// Entry is one chat message captured from the live chat widget.
type Entry struct {
	Timestamp  int64  // seconds since epoch, as reported by the widget
	ID         string // platform-assigned unique message ID
	AuthorName string // display name, may be empty
	AuthorID   string // user ID, may be empty
	Text       string // message body
}

var fields = []string{"timestamp", "id", "author_name", "author_id", "text"}

// Fields returns the row field names in attribute order.
func Fields() []string {
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// Record renders the entry as a row matching Fields.
func (e Entry) Record() []string {
	return []string{
		strconv.FormatInt(e.Timestamp, 10),
		e.ID,
		e.AuthorName,
		e.AuthorID,
		e.Text,
	}
}

// IDs returns the message IDs of entries in order.
func IDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
