package harvest

import (
	"reflect"
	"testing"

	"github.com/ppiankov/chatharvest/internal/chat"
)

func entries(pairs ...any) []chat.Entry {
	var out []chat.Entry
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, chat.Entry{Timestamp: int64(pairs[i].(int)), ID: pairs[i+1].(string)})
	}
	return out
}

func TestFilterWatermark(t *testing.T) {
	tests := []struct {
		name    string
		in      []chat.Entry
		wm      Watermark
		wantIDs []string
		wantWM  Watermark
	}{
		{
			name:    "absent watermark keeps all",
			in:      entries(100, "a", 101, "b"),
			wm:      Watermark{},
			wantIDs: []string{"a", "b"},
			wantWM:  WatermarkAt(101),
		},
		{
			name:    "strictly older dropped",
			in:      entries(99, "old", 100, "eq", 102, "new"),
			wm:      WatermarkAt(100),
			wantIDs: []string{"eq", "new"},
			wantWM:  WatermarkAt(102),
		},
		{
			name:    "equal timestamp retained",
			in:      entries(101, "b"),
			wm:      WatermarkAt(101),
			wantIDs: []string{"b"},
			wantWM:  WatermarkAt(101),
		},
		{
			name:    "nothing survives keeps watermark",
			in:      entries(1, "a", 2, "b"),
			wm:      WatermarkAt(50),
			wantIDs: []string{},
			wantWM:  WatermarkAt(50),
		},
		{
			name:    "empty input keeps absent watermark",
			in:      nil,
			wm:      Watermark{},
			wantIDs: []string{},
			wantWM:  Watermark{},
		},
		{
			name:    "last survivor not maximum",
			in:      entries(110, "x", 105, "y"),
			wm:      WatermarkAt(100),
			wantIDs: []string{"x", "y"},
			wantWM:  WatermarkAt(105),
		},
		{
			name:    "zero watermark is still present",
			in:      entries(-1, "neg", 0, "zero"),
			wm:      WatermarkAt(0),
			wantIDs: []string{"zero"},
			wantWM:  WatermarkAt(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, wm := FilterWatermark(tt.in, tt.wm)
			if ids := chat.IDs(got); !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
			if wm != tt.wantWM {
				t.Errorf("watermark = %+v, want %+v", wm, tt.wantWM)
			}
		})
	}
}

func TestWatermarkString(t *testing.T) {
	if got := (Watermark{}).String(); got != "none" {
		t.Errorf("absent = %q, want none", got)
	}
	if got := WatermarkAt(1700000000).String(); got != "1700000000" {
		t.Errorf("present = %q", got)
	}
}
