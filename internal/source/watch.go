package source

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher wakes the polling loop as soon as a snapshot file is
// rewritten instead of waiting out the full interval. It watches the parent
// directory so files replaced by rename are still seen.
type FileWatcher struct {
	path    string
	fsw     *fsnotify.Watcher
	changed chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewFileWatcher starts watching path. Call Close when done.
func NewFileWatcher(path string) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &FileWatcher{
		path:    abs,
		fsw:     fsw,
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *FileWatcher) loop() {
	target := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Bursts of writes collapse into one pending wake-up.
			select {
			case w.changed <- struct{}{}:
			default:
			}
		case _, ok := <-w.fsw.Errors:
			// Missed events only delay the next cycle to the timer.
			if !ok {
				return
			}
		}
	}
}

// Sleep waits for d, a change to the file, or ctx, whichever comes first.
// With d <= 0 it waits for a change alone. It satisfies harvest.SleepFunc.
func (w *FileWatcher) Sleep(ctx context.Context, d time.Duration) error {
	var timeout <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return nil
	case <-w.changed:
		return nil
	case <-timeout:
		return nil
	}
}

func (w *FileWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}
