package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/chatharvest/internal/chat"
)

// CSVSink appends entries to a CSV file. A new file starts with a header row;
// an existing file is appended to as is.
type CSVSink struct {
	path string
}

// NewCSV creates a CSV sink writing to path.
func NewCSV(path string) (*CSVSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("csv: path is required")
	}
	return &CSVSink{path: path}, nil
}

// Path returns the file the sink writes to.
func (c *CSVSink) Path() string {
	return c.path
}

func (c *CSVSink) Append(ctx context.Context, entries []chat.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("csv: create dir: %w", err)
		}
	}

	writeHeader := false
	if _, err := os.Stat(c.path); errors.Is(err, os.ErrNotExist) {
		writeHeader = true
	} else if err != nil {
		return fmt.Errorf("csv: stat %s: %w", c.path, err)
	}

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("csv: open %s: %w", c.path, err)
	}

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(chat.Fields()); err != nil {
			_ = f.Close()
			return fmt.Errorf("csv: write header: %w", err)
		}
	}
	for _, e := range entries {
		if err := w.Write(e.Record()); err != nil {
			_ = f.Close()
			return fmt.Errorf("csv: write entry %s: %w", e.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("csv: flush: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("csv: close %s: %w", c.path, err)
	}
	return nil
}
