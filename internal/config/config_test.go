package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/chatharvest/internal/extract"
)

func writeTestYAML(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test yaml: %v", err)
	}
	return path
}

// --- Load tests ---

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_BILI_COOKIE", "SESSDATA=abc")

	writeTestYAML(t, dir, DefaultConfigFile, `
source:
  mode: http
  url: https://live.bilibili.com/650
  user_agent: test-agent/1.0
  cookie_env: TEST_BILI_COOKIE
  timeout: 30s
extract:
  container: "#chat-items"
  text_attr: data-text
poll:
  max_cycles: 3
  interval: 2s
  reference_window: 100
  reset_watermark: false
  keep_history: false
  continue_on_error: true
storage:
  write_csv: false
  csv_path: out.csv
  db_path: chat.db
  retain_days: 14
privacy:
  anonymize_authors: true
  redact:
    enabled: true
    patterns:
      - "\\d{11}"
display:
  utc_offset_hours: 8
  zone_name: CST
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Source
	if cfg.Source.Mode != ModeHTTP {
		t.Errorf("mode = %q, want http", cfg.Source.Mode)
	}
	if cfg.Source.URL != "https://live.bilibili.com/650" {
		t.Errorf("url = %q", cfg.Source.URL)
	}
	if cfg.Source.UserAgent != "test-agent/1.0" {
		t.Errorf("user_agent = %q", cfg.Source.UserAgent)
	}
	if cfg.Source.Cookie != "SESSDATA=abc" {
		t.Errorf("cookie = %q, want SESSDATA=abc", cfg.Source.Cookie)
	}
	if cfg.Source.Timeout.Duration != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.Source.Timeout.Duration)
	}

	// Poll
	if cfg.Poll.MaxCycles != 3 {
		t.Errorf("max_cycles = %d, want 3", cfg.Poll.MaxCycles)
	}
	if cfg.Poll.Interval.Duration != 2*time.Second {
		t.Errorf("interval = %v, want 2s", cfg.Poll.Interval.Duration)
	}
	if cfg.Poll.ReferenceWindow != 100 {
		t.Errorf("reference_window = %d, want 100", cfg.Poll.ReferenceWindow)
	}
	if cfg.Poll.ResetWatermark || cfg.Poll.KeepHistory {
		t.Errorf("reset_watermark/keep_history should be switched off: %+v", cfg.Poll)
	}
	if !cfg.Poll.ContinueOnError {
		t.Error("continue_on_error should be true")
	}

	// Storage
	if cfg.Storage.WriteCSV {
		t.Error("write_csv should be false")
	}
	if cfg.Storage.CSVPath != "out.csv" || cfg.Storage.DBPath != "chat.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.RetainDays != 14 {
		t.Errorf("retain_days = %d, want 14", cfg.Storage.RetainDays)
	}

	// Privacy
	if !cfg.Privacy.AnonymizeAuthors || !cfg.Privacy.Redact.Enabled {
		t.Errorf("privacy = %+v", cfg.Privacy)
	}
	if len(cfg.Privacy.Redact.Patterns) != 1 || cfg.Privacy.Redact.Patterns[0] != `\d{11}` {
		t.Errorf("patterns = %v", cfg.Privacy.Redact.Patterns)
	}

	// Display
	if cfg.Display.UTCOffsetHours != 8 || cfg.Display.ZoneName != "CST" {
		t.Errorf("display = %+v", cfg.Display)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
source:
  url: https://live.bilibili.com/650
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Source.Mode != DefaultSourceMode {
		t.Errorf("mode = %q, want %q", cfg.Source.Mode, DefaultSourceMode)
	}
	if cfg.Source.Timeout.Duration != DefaultSourceTimeout {
		t.Errorf("timeout = %v, want %v", cfg.Source.Timeout.Duration, DefaultSourceTimeout)
	}
	if cfg.Poll.MaxCycles != DefaultMaxCycles {
		t.Errorf("max_cycles = %d, want %d", cfg.Poll.MaxCycles, DefaultMaxCycles)
	}
	if cfg.Poll.Interval.Duration != DefaultInterval {
		t.Errorf("interval = %v, want %v", cfg.Poll.Interval.Duration, DefaultInterval)
	}
	if cfg.Poll.ReferenceWindow != DefaultReferenceWindow {
		t.Errorf("reference_window = %d, want %d", cfg.Poll.ReferenceWindow, DefaultReferenceWindow)
	}
	if !cfg.Poll.ResetWatermark || !cfg.Poll.KeepHistory {
		t.Errorf("reset_watermark and keep_history should default to true: %+v", cfg.Poll)
	}
	if cfg.Poll.ContinueOnError {
		t.Error("continue_on_error should default to false")
	}
	if !cfg.Storage.WriteCSV || cfg.Storage.CSVPath != DefaultCSVPath {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.DBPath != "" {
		t.Errorf("db_path = %q, want empty", cfg.Storage.DBPath)
	}
	if cfg.Display.UTCOffsetHours != DefaultUTCOffsetHours || cfg.Display.ZoneName != DefaultZoneName {
		t.Errorf("display = %+v", cfg.Display)
	}
}

func TestLoad_EmptyStringsFallBack(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
source:
  mode: ""
storage:
  csv_path: ""
display:
  zone_name: ""
  utc_offset_hours: 0
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.Mode != DefaultSourceMode {
		t.Errorf("mode = %q", cfg.Source.Mode)
	}
	if cfg.Storage.CSVPath != DefaultCSVPath {
		t.Errorf("csv_path = %q", cfg.Storage.CSVPath)
	}
	if cfg.Display.ZoneName != DefaultZoneName {
		t.Errorf("zone_name = %q", cfg.Display.ZoneName)
	}
	if cfg.Display.UTCOffsetHours != 0 {
		t.Errorf("utc_offset_hours = %d, want explicit 0 kept", cfg.Display.UTCOffsetHours)
	}
}

func TestLoad_UnlimitedCycles(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
poll:
  max_cycles: 0
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Poll.MaxCycles != 0 {
		t.Errorf("max_cycles = %d, want 0", cfg.Poll.MaxCycles)
	}
}

func TestLoad_DurationParsing(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
poll:
  interval: 1m30s
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Poll.Interval.Duration != 90*time.Second {
		t.Errorf("interval = %v, want 1m30s", cfg.Poll.Interval.Duration)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
poll:
  interval: soon
`)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "parse duration") {
		t.Errorf("error = %q, want parse duration", err)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown mode", "source:\n  mode: ftp\n", "source.mode"},
		{"file mode without file", "source:\n  mode: file\n", "source.file"},
		{"negative cycles", "poll:\n  max_cycles: -1\n", "poll.max_cycles"},
		{"negative interval", "poll:\n  interval: -5s\n", "poll.interval"},
		{"negative window", "poll:\n  reference_window: -3\n", "poll.reference_window"},
		{"negative retain", "storage:\n  retain_days: -1\n", "storage.retain_days"},
		{"offset out of range", "display:\n  utc_offset_hours: 15\n", "display.utc_offset_hours"},
		{"watch without file mode", "source:\n  mode: http\n  watch: true\n", "source.watch"},
		{"bad redact pattern", "privacy:\n  redact:\n    patterns: [\"[oops\"]\n", "privacy.redact.patterns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeTestYAML(t, dir, DefaultConfigFile, tt.yaml)

			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_FileModeWithFile(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
source:
  mode: file
  file: snapshot.html
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.File != "snapshot.html" {
		t.Errorf("file = %q", cfg.Source.File)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "source: [unclosed\n")

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for invalid yaml")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Errorf("error = %q, want parse config", err)
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	_, err := Load("  ")
	if err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestLoad_EnvVarMissing(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
source:
  cookie_env: CHATHARVEST_TEST_UNSET_COOKIE
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.Cookie != "" {
		t.Errorf("cookie = %q, want empty", cfg.Source.Cookie)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	const key = "CHATHARVEST_TEST_DOTENV_COOKIE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "source:\n  cookie_env: "+key+"\n")
	writeTestYAML(t, dir, DefaultEnvFile, key+"=\"SESSDATA=fromfile\"\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.Cookie != "SESSDATA=fromfile" {
		t.Errorf("cookie = %q, want SESSDATA=fromfile", cfg.Source.Cookie)
	}
}

func TestLoad_EnvFileDoesNotOverride(t *testing.T) {
	const key = "CHATHARVEST_TEST_DOTENV_SET"
	t.Setenv(key, "SESSDATA=fromenv")

	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "source:\n  cookie_env: "+key+"\n")
	writeTestYAML(t, dir, DefaultEnvFile, key+"=SESSDATA=fromfile\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.Cookie != "SESSDATA=fromenv" {
		t.Errorf("cookie = %q, want SESSDATA=fromenv", cfg.Source.Cookie)
	}
}

func TestLoad_MalformedEnvFile(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "poll:\n  max_cycles: 1\n")
	writeTestYAML(t, dir, DefaultEnvFile, "BROKEN=\"unterminated\n")

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for malformed .env")
	}
	if !strings.Contains(err.Error(), DefaultEnvFile) {
		t.Errorf("error = %q, want mention of %s", err, DefaultEnvFile)
	}
}

func TestLoad_MetricsAndWatch(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
source:
  mode: file
  file: snapshot.html
  watch: true
metrics:
  listen: 127.0.0.1:9464
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Source.Watch {
		t.Error("watch = false, want true")
	}
	if cfg.Metrics.Listen != "127.0.0.1:9464" {
		t.Errorf("metrics.listen = %q", cfg.Metrics.Listen)
	}
}

// --- LoadOptional tests ---

func TestLoadOptional_MissingFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Poll.MaxCycles != DefaultMaxCycles {
		t.Errorf("max_cycles = %d, want default", cfg.Poll.MaxCycles)
	}
}

func TestLoadOptional_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "source:\n  mode: ftp\n")

	if _, err := LoadOptional(dir); err == nil {
		t.Fatal("expected validation error to surface")
	}
}

// --- mapping tests ---

func TestSelectors_Overrides(t *testing.T) {
	cfg := Default()
	cfg.Extract.Container = "#chat-items"
	cfg.Extract.TextAttr = "data-text"

	sel := cfg.Selectors()
	if sel.Container != "#chat-items" || sel.TextAttr != "data-text" {
		t.Errorf("overrides not applied: %+v", sel)
	}
	if sel.Item != extract.DefaultItem || sel.TimeAttr != extract.DefaultTimeAttr {
		t.Errorf("defaults lost: %+v", sel)
	}
}

func TestPollOptions(t *testing.T) {
	cfg := Default()
	cfg.Poll.MaxCycles = 4
	cfg.Poll.ContinueOnError = true

	opts := cfg.PollOptions()
	if opts.MaxCycles != 4 || !opts.ContinueOnError {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Interval != DefaultInterval || opts.ReferenceWindow != DefaultReferenceWindow {
		t.Errorf("opts = %+v", opts)
	}
	if !opts.ResetWatermark || !opts.KeepHistory {
		t.Errorf("opts = %+v", opts)
	}
}
