package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ppiankov/chatharvest/internal/extract"
	"github.com/ppiankov/chatharvest/internal/harvest"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile      = "config.yaml"
	DefaultEnvFile         = ".env"
	DefaultSourceMode      = "command"
	DefaultSourceTimeout   = 2 * time.Minute
	DefaultMaxCycles       = 10
	DefaultInterval        = 5 * time.Second
	DefaultReferenceWindow = harvest.DefaultReferenceWindow
	DefaultCSVPath         = "chatdata.csv"
	DefaultUTCOffsetHours  = 9
	DefaultZoneName        = "JST"
)

// Source modes.
const (
	ModeCommand = "command"
	ModeHTTP    = "http"
	ModeFile    = "file"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Extract ExtractConfig `yaml:"extract"`
	Poll    PollConfig    `yaml:"poll"`
	Storage StorageConfig `yaml:"storage"`
	Privacy PrivacyConfig `yaml:"privacy"`
	Display DisplayConfig `yaml:"display"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type SourceConfig struct {
	Mode      string   `yaml:"mode"`
	URL       string   `yaml:"url"`
	Command   []string `yaml:"command"`
	File      string   `yaml:"file"`
	Watch     bool     `yaml:"watch"`
	UserAgent string   `yaml:"user_agent"`
	CookieEnv string   `yaml:"cookie_env"`
	Timeout   Duration `yaml:"timeout"`

	// Resolved from env var at load time.
	Cookie string `yaml:"-"`
}

// ExtractConfig overrides the chat markup selectors. Empty fields keep the defaults.
type ExtractConfig struct {
	Container  string `yaml:"container"`
	Item       string `yaml:"item"`
	TimeAttr   string `yaml:"time_attr"`
	IDAttr     string `yaml:"id_attr"`
	NameAttr   string `yaml:"name_attr"`
	UserIDAttr string `yaml:"user_id_attr"`
	TextAttr   string `yaml:"text_attr"`
}

type PollConfig struct {
	MaxCycles       int      `yaml:"max_cycles"`
	Interval        Duration `yaml:"interval"`
	ReferenceWindow int      `yaml:"reference_window"`
	ResetWatermark  bool     `yaml:"reset_watermark"`
	KeepHistory     bool     `yaml:"keep_history"`
	ContinueOnError bool     `yaml:"continue_on_error"`
}

type StorageConfig struct {
	WriteCSV   bool   `yaml:"write_csv"`
	CSVPath    string `yaml:"csv_path"`
	DBPath     string `yaml:"db_path"`
	RetainDays int    `yaml:"retain_days"`
}

type PrivacyConfig struct {
	AnonymizeAuthors bool         `yaml:"anonymize_authors"`
	Redact           RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

// MetricsConfig enables the Prometheus endpoint during record. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type DisplayConfig struct {
	UTCOffsetHours int    `yaml:"utc_offset_hours"`
	ZoneName       string `yaml:"zone_name"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Mode:    DefaultSourceMode,
			Timeout: Duration{DefaultSourceTimeout},
		},
		Poll: PollConfig{
			MaxCycles:       DefaultMaxCycles,
			Interval:        Duration{DefaultInterval},
			ReferenceWindow: DefaultReferenceWindow,
			ResetWatermark:  true,
			KeepHistory:     true,
		},
		Storage: StorageConfig{
			WriteCSV: true,
			CSVPath:  DefaultCSVPath,
		},
		Display: DisplayConfig{
			UTCOffsetHours: DefaultUTCOffsetHours,
			ZoneName:       DefaultZoneName,
		},
	}
}

// Load reads config.yaml from dir over the defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Keys absent from the file keep their Default() value, so booleans
	// that default to true can still be switched off explicitly.
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := loadEnvFile(dir); err != nil {
		return nil, err
	}
	resolveEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadOptional behaves like Load but falls back to Default when dir has no config file.
func LoadOptional(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Mode == "" {
		cfg.Source.Mode = DefaultSourceMode
	}
	if cfg.Source.Timeout.Duration == 0 {
		cfg.Source.Timeout.Duration = DefaultSourceTimeout
	}
	if cfg.Poll.ReferenceWindow == 0 {
		cfg.Poll.ReferenceWindow = DefaultReferenceWindow
	}
	if cfg.Storage.CSVPath == "" {
		cfg.Storage.CSVPath = DefaultCSVPath
	}
	if cfg.Display.ZoneName == "" {
		cfg.Display.ZoneName = DefaultZoneName
	}
}

// loadEnvFile exports variables from dir/.env without overriding ones
// already set in the environment.
func loadEnvFile(dir string) error {
	path := filepath.Join(dir, DefaultEnvFile)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", DefaultEnvFile, err)
	}
	return nil
}

func resolveEnv(cfg *Config) {
	if cfg.Source.CookieEnv != "" {
		cfg.Source.Cookie = os.Getenv(cfg.Source.CookieEnv)
	}
}

func validate(cfg *Config) error {
	switch cfg.Source.Mode {
	case ModeCommand, ModeHTTP:
		// valid
	case ModeFile:
		if cfg.Source.File == "" {
			return errors.New("source.file: required when mode is file")
		}
	default:
		return fmt.Errorf("source.mode: unknown mode %q (want command, http or file)", cfg.Source.Mode)
	}

	if cfg.Poll.MaxCycles < 0 {
		return fmt.Errorf("poll.max_cycles: must not be negative, got %d", cfg.Poll.MaxCycles)
	}
	if cfg.Poll.Interval.Duration < 0 {
		return fmt.Errorf("poll.interval: must not be negative, got %s", cfg.Poll.Interval)
	}
	if cfg.Poll.ReferenceWindow < 0 {
		return fmt.Errorf("poll.reference_window: must not be negative, got %d", cfg.Poll.ReferenceWindow)
	}
	if cfg.Source.Watch && cfg.Source.Mode != ModeFile {
		return errors.New("source.watch: only supported when mode is file")
	}
	if cfg.Storage.RetainDays < 0 {
		return fmt.Errorf("storage.retain_days: must not be negative, got %d", cfg.Storage.RetainDays)
	}
	if cfg.Display.UTCOffsetHours < -12 || cfg.Display.UTCOffsetHours > 14 {
		return fmt.Errorf("display.utc_offset_hours: %d out of range [-12, 14]", cfg.Display.UTCOffsetHours)
	}

	for _, p := range cfg.Privacy.Redact.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("privacy.redact.patterns: %w", err)
		}
	}

	return nil
}

// Selectors returns the extractor selectors with config overrides applied.
func (c *Config) Selectors() extract.Selectors {
	sel := extract.DefaultSelectors()
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&sel.Container, c.Extract.Container)
	override(&sel.Item, c.Extract.Item)
	override(&sel.TimeAttr, c.Extract.TimeAttr)
	override(&sel.IDAttr, c.Extract.IDAttr)
	override(&sel.NameAttr, c.Extract.NameAttr)
	override(&sel.UserIDAttr, c.Extract.UserIDAttr)
	override(&sel.TextAttr, c.Extract.TextAttr)
	return sel
}

// PollOptions maps the poll section onto controller options.
func (c *Config) PollOptions() harvest.Options {
	return harvest.Options{
		MaxCycles:       c.Poll.MaxCycles,
		Interval:        c.Poll.Interval.Duration,
		ReferenceWindow: c.Poll.ReferenceWindow,
		ResetWatermark:  c.Poll.ResetWatermark,
		KeepHistory:     c.Poll.KeepHistory,
		ContinueOnError: c.Poll.ContinueOnError,
	}
}
