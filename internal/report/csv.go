package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/ppiankov/chatharvest/internal/chat"
)

// CSVFormatter writes entries as CSV rows with a header, in the same layout
// the CSV sink produces.
type CSVFormatter struct{}

func NewCSV() *CSVFormatter {
	return &CSVFormatter{}
}

func (f *CSVFormatter) Format(w io.Writer, input Input) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(chat.Fields()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range input.Entries {
		if err := cw.Write(e.Record()); err != nil {
			return fmt.Errorf("write entry %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
