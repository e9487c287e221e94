package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ppiankov/chatharvest/internal/chat"
	"github.com/ppiankov/chatharvest/internal/sink"
	"github.com/ppiankov/chatharvest/internal/source"
)

// Extractor turns a snapshot into chat entries.
type Extractor interface {
	Extract(snapshot string) ([]chat.Entry, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Observer is told about every finished cycle, successful or not.
type Observer interface {
	CycleDone(res Result, elapsed time.Duration, err error)
}

// Options configures a Controller.
type Options struct {
	MaxCycles       int           // cycles per Run; 0 runs until ctx is canceled
	Interval        time.Duration // pause between cycles
	ReferenceWindow int           // trailing history entries used for dedupe; 0 = DefaultReferenceWindow
	ResetWatermark  bool          // clear the watermark when Run starts
	KeepHistory     bool          // append accepted entries to history
	ContinueOnError bool          // log failing cycles and keep polling instead of aborting
	Sleep           SleepFunc     // nil = context-aware timer
	Observer        Observer      // optional
}

// Summary reports what a Run did.
type Summary struct {
	Cycles    int // cycles that completed
	Failed    int // cycles skipped because of ContinueOnError
	Accepted  int // entries accepted across all cycles
	Watermark Watermark
}

// Controller polls a source and forwards new chat entries to a sink.
// It runs one cycle at a time; History and State may be read concurrently.
type Controller struct {
	src       source.Source
	extractor Extractor
	sink      sink.Sink
	opts      Options
	logger    *slog.Logger

	mu    sync.Mutex
	state State
}

// NewController wires a controller. snk may be nil to disable persistence.
func NewController(src source.Source, ext Extractor, snk sink.Sink, opts Options, logger *slog.Logger) (*Controller, error) {
	if src == nil {
		return nil, errors.New("harvest: source is required")
	}
	if ext == nil {
		return nil, errors.New("harvest: extractor is required")
	}
	if opts.MaxCycles < 0 {
		return nil, fmt.Errorf("harvest: max cycles must not be negative, got %d", opts.MaxCycles)
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("harvest: interval must not be negative, got %s", opts.Interval)
	}
	if opts.ReferenceWindow <= 0 {
		opts.ReferenceWindow = DefaultReferenceWindow
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		src:       src,
		extractor: ext,
		sink:      snk,
		opts:      opts,
		logger:    logger,
	}, nil
}

// RunCycle performs one fetch, extract, filter, dedupe, persist pass.
// On error the state is left as it was before the call.
func (c *Controller) RunCycle(ctx context.Context) (Result, error) {
	start := time.Now()
	res, err := c.runCycle(ctx)
	if c.opts.Observer != nil {
		c.opts.Observer.CycleDone(res, time.Since(start), err)
	}
	return res, err
}

func (c *Controller) runCycle(ctx context.Context) (Result, error) {
	snapshot, err := c.src.Fetch(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", c.src.Name(), err)
	}

	entries, err := c.extractor.Extract(snapshot)
	if err != nil {
		return Result{}, fmt.Errorf("extract: %w", err)
	}

	prev := c.State()
	next, res := step(prev, entries, c.opts.ReferenceWindow)
	if c.opts.KeepHistory && len(res.Accepted) > 0 {
		// The controller is the only writer of its history, so it grows in
		// place. Elements past len(prev.History) are invisible to earlier
		// State callers and are overwritten if this cycle is not committed.
		next.History = append(prev.History, res.Accepted...)
	}

	if c.sink != nil && len(res.Accepted) > 0 {
		if err := c.sink.Append(ctx, res.Accepted); err != nil {
			return Result{}, fmt.Errorf("persist: %w", err)
		}
	}

	c.mu.Lock()
	c.state = next
	c.mu.Unlock()

	return res, nil
}

// Run executes cycles until MaxCycles is reached, ctx is canceled, or a cycle
// fails. Without ContinueOnError the first failure ends the run.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	if c.opts.ResetWatermark {
		c.Reset()
	}

	var sum Summary
	for i := 1; c.opts.MaxCycles == 0 || i <= c.opts.MaxCycles; i++ {
		if err := ctx.Err(); err != nil {
			sum.Watermark = c.State().Watermark
			return sum, err
		}

		res, err := c.RunCycle(ctx)
		switch {
		case err == nil:
			sum.Cycles++
			sum.Accepted += len(res.Accepted)
			c.logger.Info("cycle complete",
				"cycle", i,
				"extracted", res.Extracted,
				"fresh", res.Fresh,
				"accepted", len(res.Accepted),
				"watermark", res.Watermark.String(),
			)
		case c.opts.ContinueOnError && ctx.Err() == nil:
			sum.Failed++
			c.logger.Warn("cycle failed, continuing", "cycle", i, "error", err)
		default:
			sum.Watermark = c.State().Watermark
			return sum, fmt.Errorf("cycle %d: %w", i, err)
		}

		if i == c.opts.MaxCycles {
			break
		}
		if err := c.opts.Sleep(ctx, c.opts.Interval); err != nil {
			sum.Watermark = c.State().Watermark
			return sum, err
		}
	}

	sum.Watermark = c.State().Watermark
	return sum, nil
}

// Reset clears the watermark so the next cycle rescans the whole snapshot.
// History is kept, so already accepted entries are still suppressed.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.state.Watermark = Watermark{}
	c.mu.Unlock()
}

// History returns a copy of every accepted entry, oldest first.
func (c *Controller) History() []chat.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.state.History)
}

// State returns the current state. The History slice is shared with the
// controller and must not be modified or appended to.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Restore replaces the controller state, e.g. to resume from a watermark
// tracked outside the process.
func (c *Controller) Restore(st State) {
	c.mu.Lock()
	c.state = State{Watermark: st.Watermark, History: slices.Clone(st.History)}
	c.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
