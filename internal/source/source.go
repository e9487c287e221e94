// Package source acquires raw snapshots of a live chat page.
package source

import "context"

// Source returns the current rendered state of the chat widget as markup.
type Source interface {
	// Name returns the source identifier (e.g. "http").
	Name() string

	// Fetch returns a fresh snapshot. Implementations do not retry forever;
	// callers wanting a hard deadline set one on ctx.
	Fetch(ctx context.Context) (string, error)
}
