package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/chatharvest/internal/chat"
	"github.com/ppiankov/chatharvest/internal/config"
	"github.com/ppiankov/chatharvest/internal/extract"
	"github.com/ppiankov/chatharvest/internal/harvest"
	"github.com/ppiankov/chatharvest/internal/metrics"
	"github.com/ppiankov/chatharvest/internal/report"
	"github.com/ppiankov/chatharvest/internal/sink"
	"github.com/ppiankov/chatharvest/internal/source"
	"github.com/ppiankov/chatharvest/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	recordSource          sourceFlags
	recordCycles          int
	recordInterval        string
	recordWindow          int
	recordCSV             string
	recordNoCSV           bool
	recordDB              string
	recordKeepWatermark   bool
	recordResume          bool
	recordContinueOnError bool
	recordWatch           bool
	recordMetricsAddr     string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Poll the chat repeatedly and append new comments",
	Long:  "record takes a snapshot every interval, keeps comments that are newer than the last one seen and not already recorded, and appends them to CSV and, when configured, SQLite.",
	RunE:  recordAction,
}

func init() {
	recordSource.register(recordCmd)
	recordCmd.Flags().IntVar(&recordCycles, "cycles", -1, "polling cycles, 0 runs until interrupted (default from config)")
	recordCmd.Flags().StringVar(&recordInterval, "interval", "", "pause between cycles, e.g. 5s (default from config)")
	recordCmd.Flags().IntVar(&recordWindow, "window", 0, "recent comments checked for duplicates (default from config)")
	recordCmd.Flags().StringVar(&recordCSV, "csv", "", "CSV file to append to (default from config)")
	recordCmd.Flags().BoolVar(&recordNoCSV, "no-csv", false, "do not write CSV")
	recordCmd.Flags().StringVar(&recordDB, "db", "", "SQLite database to record into (default from config)")
	recordCmd.Flags().BoolVar(&recordKeepWatermark, "keep-watermark", false, "do not clear the watermark when polling starts")
	recordCmd.Flags().BoolVar(&recordResume, "resume", false, "continue after the latest comment in the database")
	recordCmd.Flags().BoolVar(&recordContinueOnError, "continue-on-error", false, "skip failing cycles instead of stopping")
	recordCmd.Flags().BoolVar(&recordWatch, "watch", false, "with --file, poll again as soon as the file changes; --interval becomes the longest wait, 0 waits for changes only")
	recordCmd.Flags().StringVar(&recordMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464 (default from config)")
	rootCmd.AddCommand(recordCmd)
}

func recordAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOptional(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := recordSource.apply(cfg); err != nil {
		return err
	}
	if err := applyRecordFlags(cfg); err != nil {
		return err
	}

	src, err := buildSource(cfg)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}

	logger := newLogger()
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		sinks   sink.Multi
		csvSink *sink.CSVSink
	)
	if cfg.Storage.WriteCSV {
		csvSink, err = sink.NewCSV(cfg.Storage.CSVPath)
		if err != nil {
			return err
		}
	}

	var (
		db        *store.Store
		storeSink *sink.StoreSink
		run       store.Run
	)
	if cfg.Storage.DBPath != "" {
		db, err = store.Open(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = db.Close() }()

		if cfg.Storage.RetainDays > 0 {
			pruned, err := db.PruneOld(ctx, cfg.Storage.RetainDays)
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			if pruned > 0 {
				logger.Info("pruned old entries", "count", pruned, "retain_days", cfg.Storage.RetainDays)
			}
		}

		run, err = db.StartRun(ctx, pageLabel(cfg), time.Now())
		if err != nil {
			return fmt.Errorf("start run: %w", err)
		}
		storeSink, err = sink.NewStore(db, run.ID)
		if err != nil {
			return err
		}
		sinks = append(sinks, storeSink)
	}
	// The store ignores ids it already holds, the CSV does not. Writing the
	// store first keeps a batch it rejects out of the CSV.
	if csvSink != nil {
		sinks = append(sinks, csvSink)
	}

	opts := cfg.PollOptions()
	var resumed harvest.State
	if recordResume {
		if db == nil {
			return errors.New("--resume needs a database (--db or storage.db_path)")
		}
		resumed, err = resumeState(ctx, db, cfg.Poll.ReferenceWindow)
		if err != nil {
			return err
		}
		if resumed.Watermark.Valid {
			opts.ResetWatermark = false
		}
	}

	if cfg.Source.Watch {
		fw, err := source.NewFileWatcher(cfg.Source.File)
		if err != nil {
			return err
		}
		defer func() { _ = fw.Close() }()
		opts.Sleep = fw.Sleep
	}

	var (
		recorder  *metrics.Recorder
		metricsLn net.Listener
	)
	if cfg.Metrics.Listen != "" {
		metricsLn, err = net.Listen("tcp", cfg.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer func() { _ = metricsLn.Close() }()
		recorder = metrics.New()
		opts.Observer = recorder
		logger.Info("serving metrics", "addr", metricsLn.Addr().String())
	}

	var snk sink.Sink
	if len(sinks) > 0 {
		filter, err := privacyFilter(cfg)
		if err != nil {
			return err
		}
		snk = filter.Wrap(sinks)
	}

	ctrl, err := harvest.NewController(src, extract.New(cfg.Selectors()), snk, opts, logger)
	if err != nil {
		return err
	}
	if resumed.Watermark.Valid {
		ctrl.Restore(resumed)
		logger.Info("resuming", "watermark", resumed.Watermark.String(), "history", len(resumed.History))
	}

	// The metrics server lives exactly as long as the polling loop.
	runCtx, finish := context.WithCancel(ctx)
	defer finish()
	g, gctx := errgroup.WithContext(runCtx)

	var (
		sum    harvest.Summary
		runErr error
	)
	g.Go(func() error {
		defer finish()
		sum, runErr = ctrl.Run(gctx)
		return nil
	})
	if recorder != nil {
		g.Go(func() error {
			return recorder.Serve(gctx, metricsLn)
		})
	}
	serveErr := g.Wait()

	interrupted := runErr != nil && errors.Is(runErr, context.Canceled)

	rs := recordSummary{
		Summary:     sum,
		Interrupted: interrupted,
		Zone:        displayZone(cfg),
	}
	if cfg.Storage.WriteCSV {
		rs.CSVPath = cfg.Storage.CSVPath
	}
	if storeSink != nil {
		rs.DBPath = cfg.Storage.DBPath
		rs.RunID = run.ID
		rs.Inserted = storeSink.Inserted()
	}
	printRecordSummary(os.Stdout, rs)

	if serveErr != nil {
		return fmt.Errorf("metrics: %w", serveErr)
	}
	if runErr != nil && !interrupted {
		return runErr
	}
	return nil
}

func applyRecordFlags(cfg *config.Config) error {
	if recordCycles >= 0 {
		cfg.Poll.MaxCycles = recordCycles
	}
	if recordInterval != "" {
		d, err := time.ParseDuration(recordInterval)
		if err != nil {
			return fmt.Errorf("parse --interval: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("--interval must not be negative, got %s", d)
		}
		cfg.Poll.Interval.Duration = d
	}
	if recordWindow < 0 {
		return fmt.Errorf("--window must not be negative, got %d", recordWindow)
	}
	if recordWindow > 0 {
		cfg.Poll.ReferenceWindow = recordWindow
	}
	if recordCSV != "" {
		cfg.Storage.CSVPath = recordCSV
		cfg.Storage.WriteCSV = true
	}
	if recordNoCSV {
		cfg.Storage.WriteCSV = false
	}
	if recordDB != "" {
		cfg.Storage.DBPath = recordDB
	}
	if recordKeepWatermark {
		cfg.Poll.ResetWatermark = false
	}
	if recordContinueOnError {
		cfg.Poll.ContinueOnError = true
	}
	if recordWatch {
		cfg.Source.Watch = true
	}
	if cfg.Source.Watch && cfg.Source.Mode != config.ModeFile {
		return errors.New("--watch needs a snapshot file (--file)")
	}
	if recordMetricsAddr != "" {
		cfg.Metrics.Listen = recordMetricsAddr
	}
	return nil
}

// resumeState rebuilds the watermark and the duplicate reference window from
// the newest stored entries. The zero State means there is nothing to resume.
func resumeState(ctx context.Context, db *store.Store, window int) (harvest.State, error) {
	if window <= 0 {
		window = harvest.DefaultReferenceWindow
	}
	tail, err := db.TailEntries(ctx, window)
	if err != nil {
		return harvest.State{}, fmt.Errorf("resume: %w", err)
	}
	if len(tail) == 0 {
		return harvest.State{}, nil
	}

	history := make([]chat.Entry, len(tail))
	for i, e := range tail {
		history[i] = e.Entry
	}
	return harvest.State{
		Watermark: harvest.WatermarkAt(history[len(history)-1].Timestamp),
		History:   history,
	}, nil
}

type recordSummary struct {
	harvest.Summary
	Interrupted bool
	CSVPath     string
	DBPath      string
	RunID       string
	Inserted    int
	Zone        *time.Location
}

func printRecordSummary(w io.Writer, s recordSummary) {
	line := fmt.Sprintf("Recorded %s new comments in %d cycles",
		humanize.Comma(int64(s.Accepted)), s.Cycles)
	if s.Failed > 0 {
		line += fmt.Sprintf(" (%d failed)", s.Failed)
	}
	if s.Interrupted {
		line += ", interrupted"
	}
	fmt.Fprintln(w, line)

	if s.CSVPath != "" {
		fmt.Fprintf(w, "  csv: %s\n", s.CSVPath)
	}
	if s.DBPath != "" {
		fmt.Fprintf(w, "  db:  %s (run %s, %s stored)\n", s.DBPath, shortID(s.RunID), humanize.Comma(int64(s.Inserted)))
	}

	if s.Watermark.Valid {
		fmt.Fprintf(w, "Latest comment at %s\n", report.FormatCivil(s.Watermark.Unix, s.Zone))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
