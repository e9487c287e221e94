// Package sink appends accepted chat entries to durable storage.
package sink

import (
	"context"

	"github.com/ppiankov/chatharvest/internal/chat"
)

// Sink appends entries to durable storage. An empty batch is a no-op.
type Sink interface {
	Append(ctx context.Context, entries []chat.Entry) error
}

// Multi fans a batch out to several sinks in order, stopping at the first
// failure. A failed batch may be offered again on a later cycle, so sinks that
// cannot ignore a replayed entry belong last.
type Multi []Sink

func (m Multi) Append(ctx context.Context, entries []chat.Entry) error {
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, entries); err != nil {
			return err
		}
	}
	return nil
}
