package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

const fileSourceName = "file"

// FileSource replays a snapshot saved to disk. The file is re-read on every
// fetch, so an external process may keep overwriting it.
type FileSource struct {
	path string
}

// NewFile creates a file source for path.
func NewFile(path string) (*FileSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("file: snapshot path is required")
	}
	return &FileSource{path: path}, nil
}

func (fs *FileSource) Name() string {
	return fileSourceName
}

func (fs *FileSource) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return "", fmt.Errorf("file: read snapshot: %w", err)
	}
	return string(data), nil
}
