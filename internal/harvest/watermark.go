package harvest

import (
	"strconv"

	"github.com/ppiankov/chatharvest/internal/chat"
)

// Watermark is the timestamp of the last entry accepted by a non-empty cycle.
// The zero value is an absent watermark.
type Watermark struct {
	Unix  int64
	Valid bool
}

// WatermarkAt returns a present watermark at ts.
func WatermarkAt(ts int64) Watermark {
	return Watermark{Unix: ts, Valid: true}
}

func (w Watermark) String() string {
	if !w.Valid {
		return "none"
	}
	return strconv.FormatInt(w.Unix, 10)
}

// FilterWatermark drops entries strictly older than wm and returns the
// survivors with the next watermark. Entries stamped exactly at wm are kept;
// Dedupe catches the ones already seen.
//
// The next watermark is the timestamp of the last survivor, not the maximum,
// so it follows the snapshot's own ordering. With no survivors wm is returned.
func FilterWatermark(entries []chat.Entry, wm Watermark) ([]chat.Entry, Watermark) {
	var out []chat.Entry
	for _, e := range entries {
		if wm.Valid && e.Timestamp < wm.Unix {
			continue
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return out, wm
	}
	return out, WatermarkAt(out[len(out)-1].Timestamp)
}
