// Package extract turns a rendered chat widget snapshot into chat entries.
package extract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/chatharvest/internal/chat"
)

// Default selectors and attributes for the bilibili live chat widget.
const (
	DefaultContainer  = "#chat-history-list"
	DefaultItem       = ".chat-item"
	DefaultTimeAttr   = "data-ts"
	DefaultIDAttr     = "data-ct"
	DefaultNameAttr   = "data-uname"
	DefaultUserIDAttr = "data-uid"
	DefaultTextAttr   = "data-danmaku"
)

var (
	// ErrContainerNotFound means the snapshot has no chat container at all,
	// typically an offline stream or a different page layout.
	ErrContainerNotFound = errors.New("chat container not found")

	// ErrNoItemsFound means the container exists but holds no items.
	ErrNoItemsFound = errors.New("no chat items found")

	// ErrMalformedTimestamp means an item carries a time attribute that is not an integer.
	ErrMalformedTimestamp = errors.New("malformed chat timestamp")
)

// Selectors names the markup the extractor looks for.
type Selectors struct {
	Container  string
	Item       string
	TimeAttr   string
	IDAttr     string
	NameAttr   string
	UserIDAttr string
	TextAttr   string
}

// DefaultSelectors returns the selectors for the bilibili live chat widget.
func DefaultSelectors() Selectors {
	return Selectors{
		Container:  DefaultContainer,
		Item:       DefaultItem,
		TimeAttr:   DefaultTimeAttr,
		IDAttr:     DefaultIDAttr,
		NameAttr:   DefaultNameAttr,
		UserIDAttr: DefaultUserIDAttr,
		TextAttr:   DefaultTextAttr,
	}
}

// Extractor parses snapshots with a fixed set of selectors.
type Extractor struct {
	sel Selectors
}

// New creates an extractor. Empty selector fields fall back to the defaults.
func New(sel Selectors) *Extractor {
	def := DefaultSelectors()
	if sel.Container == "" {
		sel.Container = def.Container
	}
	if sel.Item == "" {
		sel.Item = def.Item
	}
	if sel.TimeAttr == "" {
		sel.TimeAttr = def.TimeAttr
	}
	if sel.IDAttr == "" {
		sel.IDAttr = def.IDAttr
	}
	if sel.NameAttr == "" {
		sel.NameAttr = def.NameAttr
	}
	if sel.UserIDAttr == "" {
		sel.UserIDAttr = def.UserIDAttr
	}
	if sel.TextAttr == "" {
		sel.TextAttr = def.TextAttr
	}
	return &Extractor{sel: sel}
}

// Extract returns the chat messages in the snapshot in document order.
// Items without a time attribute are widget notices (entries, gifts) and are skipped.
func (x *Extractor) Extract(snapshot string) ([]chat.Entry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	container := doc.Find(x.sel.Container).First()
	if container.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, x.sel.Container)
	}

	items := container.Find(x.sel.Item)
	if items.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoItemsFound, x.sel.Item)
	}

	var (
		entries []chat.Entry
		itemErr error
	)
	items.EachWithBreak(func(i int, item *goquery.Selection) bool {
		raw := strings.TrimSpace(item.AttrOr(x.sel.TimeAttr, ""))
		if raw == "" {
			return true
		}
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			itemErr = fmt.Errorf("%w: item %d: %q", ErrMalformedTimestamp, i, raw)
			return false
		}
		entries = append(entries, chat.Entry{
			Timestamp:  ts,
			ID:         item.AttrOr(x.sel.IDAttr, ""),
			AuthorName: item.AttrOr(x.sel.NameAttr, ""),
			AuthorID:   item.AttrOr(x.sel.UserIDAttr, ""),
			Text:       item.AttrOr(x.sel.TextAttr, ""),
		})
		return true
	})
	if itemErr != nil {
		return nil, itemErr
	}

	return entries, nil
}

// Extract parses a snapshot with the default selectors.
func Extract(snapshot string) ([]chat.Entry, error) {
	return New(Selectors{}).Extract(snapshot)
}
