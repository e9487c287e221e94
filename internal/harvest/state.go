// Package harvest implements incremental chat retrieval: watermark filtering,
// windowed deduplication and the polling controller that drives them.
package harvest

import (
	"slices"

	"github.com/ppiankov/chatharvest/internal/chat"
)

// State is everything carried from one cycle to the next.
type State struct {
	Watermark Watermark
	History   []chat.Entry // append-only, oldest first
}

// Result describes what one cycle did with an extracted batch.
type Result struct {
	Extracted int          // entries found in the snapshot
	Fresh     int          // entries left after the watermark filter
	Accepted  []chat.Entry // entries left after deduplication
	Watermark Watermark    // watermark after the cycle
}

// Advance applies the watermark filter and the dedupe window to entries and
// returns the next state. It does not modify st, so the returned history is
// always a fresh copy.
func Advance(st State, entries []chat.Entry, window int) (State, Result) {
	next, res := step(st, entries, window)
	if len(res.Accepted) > 0 {
		next.History = append(slices.Clip(st.History), res.Accepted...)
	}
	return next, res
}

// step is Advance without the history update.
func step(st State, entries []chat.Entry, window int) (State, Result) {
	fresh, wm := FilterWatermark(entries, st.Watermark)
	accepted := Dedupe(fresh, ReferenceWindow(st.History, window))

	return State{Watermark: wm, History: st.History}, Result{
		Extracted: len(entries),
		Fresh:     len(fresh),
		Accepted:  accepted,
		Watermark: wm,
	}
}
