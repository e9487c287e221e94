package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/ppiankov/chatharvest/internal/config"
	"github.com/ppiankov/chatharvest/internal/privacy"
	"github.com/ppiankov/chatharvest/internal/report"
	"github.com/ppiankov/chatharvest/internal/source"
	"github.com/spf13/cobra"
)

var noColor bool

// sourceFlags are the snapshot source overrides shared by fetch and record.
type sourceFlags struct {
	url  string
	mode string
	file string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.url, "url", "u", "", "live stream page URL, e.g. https://live.bilibili.com/XXX")
	cmd.Flags().StringVar(&f.mode, "source", "", "snapshot source: command, http, file (default from config)")
	cmd.Flags().StringVar(&f.file, "file", "", "saved snapshot to read (implies --source file)")
}

// apply writes the flag overrides into cfg and checks that the chosen
// source has what it needs.
func (f *sourceFlags) apply(cfg *config.Config) error {
	if f.url != "" {
		cfg.Source.URL = f.url
	}
	if f.file != "" {
		cfg.Source.File = f.file
		if f.mode == "" {
			cfg.Source.Mode = config.ModeFile
		}
	}
	if f.mode != "" {
		cfg.Source.Mode = f.mode
	}

	switch cfg.Source.Mode {
	case config.ModeCommand, config.ModeHTTP:
		if cfg.Source.URL == "" {
			return errors.New("--url is required (or set source.url in config.yaml)")
		}
	case config.ModeFile:
		if cfg.Source.File == "" {
			return errors.New("--file is required with --source file")
		}
	default:
		return fmt.Errorf("unknown source %q (want command, http or file)", cfg.Source.Mode)
	}
	return nil
}

func buildSource(cfg *config.Config) (source.Source, error) {
	switch cfg.Source.Mode {
	case config.ModeHTTP:
		hs, err := source.NewHTTP(cfg.Source.URL, source.HTTPOptions{
			UserAgent: cfg.Source.UserAgent,
			Cookie:    cfg.Source.Cookie,
			Timeout:   cfg.Source.Timeout.Duration,
		})
		if err != nil {
			return nil, err
		}
		return hs, nil
	case config.ModeFile:
		fs, err := source.NewFile(cfg.Source.File)
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		cs, err := source.NewCommand(cfg.Source.URL, cfg.Source.Command, cfg.Source.Timeout.Duration)
		if err != nil {
			return nil, err
		}
		return cs, nil
	}
}

// pageLabel names where the chat came from in reports and run records.
func pageLabel(cfg *config.Config) string {
	if cfg.Source.Mode == config.ModeFile {
		return cfg.Source.File
	}
	return cfg.Source.URL
}

func privacyFilter(cfg *config.Config) (*privacy.Filter, error) {
	var patterns []string
	if cfg.Privacy.Redact.Enabled {
		patterns = cfg.Privacy.Redact.Patterns
	}
	return privacy.NewFilter(patterns, cfg.Privacy.AnonymizeAuthors)
}

func displayZone(cfg *config.Config) *time.Location {
	return report.Zone(cfg.Display.UTCOffsetHours, cfg.Display.ZoneName)
}

func useColor() bool {
	return !noColor && isatty.IsTerminal(os.Stdout.Fd())
}

func pickFormatter(format string) (report.Formatter, error) {
	switch format {
	case "terminal", "":
		return report.NewTerminal(useColor()), nil
	case "json":
		return report.NewJSON(), nil
	case "markdown":
		return report.NewMarkdown(), nil
	case "csv":
		return report.NewCSV(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want terminal, json, markdown or csv)", format)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// parseDuration handles both Go durations and "Nd" day notation.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}
