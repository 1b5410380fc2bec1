// Package config parses the single JSON configuration document tdog is
// driven by and exposes typed accessors with defaults, following the same
// getter-with-default idiom the rest of this codebase uses for environment
// variables.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// SinkKind names a supported database dialect for the Tx abstraction.
type SinkKind string

const (
	SinkPostgres SinkKind = "postgres"
	SinkSQLite   SinkKind = "sqlite"
	SinkMySQL    SinkKind = "mysql"
)

// Sink describes the database this run writes into.
type Sink struct {
	Kind SinkKind `json:"kind"`
	DSN  string   `json:"dsn"`
	// Schema is the namespace/schema to create and use, when the dialect
	// supports one (Postgres). Ignored for sqlite.
	Schema string `json:"schema"`
}

// Provider describes the remote payments provider account being mirrored,
// spec §6's `cmd.source` document.
type Provider struct {
	APIKey  string `json:"api_key"`
	Version string `json:"api_version"`
	// BaseURL overrides the provider's default API endpoint; used by tests
	// to point at a fake server.
	BaseURL string `json:"base_url"`
	// MaxRequestsPerSecond overrides Scheduler.MaxStartsPerSecond when set.
	MaxRequestsPerSecond int `json:"max_requests_per_second"`
	// ExitOnLimit converts a 429 pause into a fatal process exit (spec
	// §4.3, §6 exit codes) instead of pausing and resuming.
	ExitOnLimit bool `json:"exit_on_429"`
	// HTTPProxy, if set, routes every provider request through it.
	HTTPProxy string `json:"http_proxy"`
	// TimeoutMS bounds one HTTP call; zero uses providerclient's default.
	TimeoutMS int `json:"timeout_ms"`
}

// Scheduler configures the rate-limited ticket queue.
type Scheduler struct {
	MaxStartsPerSecond int           `json:"max_starts_per_second"`
	PauseBackoff       time.Duration `json:"pause_backoff"`
}

// Options toggles behavior that doesn't fit the source/sink split: whether
// to keep tailing events after the command finishes, and whether a
// one-shot download should chain straight into an apply-events pass.
type Options struct {
	Watch                     bool `json:"watch"`
	ApplyEventsAfterOneShotDL bool `json:"apply_events_after_one_shot_dl"`
}

// CmdKind names the top-level operation one invocation requests, spec
// §6's `cmd.kind` document field.
type CmdKind string

const (
	CmdDownload    CmdKind = "download"
	CmdApplyEvents CmdKind = "apply_events"
)

// Cmd is the top-level `cmd` document spec §6 describes: what operation to
// run and the source/sink/options it runs with.
type Cmd struct {
	Kind    CmdKind  `json:"kind"`
	Source  Provider `json:"source"`
	Sink    Sink     `json:"sink"`
	Options Options  `json:"options"`
}

// Config is the fully parsed configuration document for one tdog run.
type Config struct {
	Cmd       Cmd       `json:"cmd"`
	Scheduler Scheduler `json:"scheduler"`
	LogLevel  string    `json:"log"`
}

const (
	defaultMaxStartsPerSecond = 25
	defaultPauseBackoff       = 10 * time.Second
)

// Load parses a JSON configuration document from r, applying defaults for
// any field the document omits.
func Load(r io.Reader) (*Config, error) {
	var cfg Config

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFile reads and parses the configuration document at path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}

// LoadDocument parses either a raw JSON document or, if doc names an
// existing file, that file's contents, per spec §6's "accepted as a
// string or a file path" config surface.
func LoadDocument(doc string) (*Config, error) {
	if _, err := os.Stat(doc); err == nil {
		return LoadFile(doc)
	}

	return Load(strings.NewReader(doc))
}

func (c *Config) applyDefaults() {
	if c.Scheduler.MaxStartsPerSecond <= 0 {
		c.Scheduler.MaxStartsPerSecond = defaultMaxStartsPerSecond
	}

	if c.Cmd.Source.MaxRequestsPerSecond > 0 {
		c.Scheduler.MaxStartsPerSecond = c.Cmd.Source.MaxRequestsPerSecond
	}

	if c.Scheduler.PauseBackoff <= 0 {
		c.Scheduler.PauseBackoff = defaultPauseBackoff
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports the first structural problem found in the configuration.
func (c *Config) Validate() error {
	switch c.Cmd.Kind {
	case CmdDownload, CmdApplyEvents:
	default:
		return fmt.Errorf("config: cmd.kind %q is not one of download, apply_events", c.Cmd.Kind)
	}

	switch c.Cmd.Sink.Kind {
	case SinkPostgres, SinkSQLite, SinkMySQL:
	default:
		return fmt.Errorf("config: sink.kind %q is not one of postgres, sqlite, mysql", c.Cmd.Sink.Kind)
	}

	if c.Cmd.Sink.DSN == "" {
		return fmt.Errorf("config: sink.dsn is required")
	}

	if c.Cmd.Source.APIKey == "" {
		return fmt.Errorf("config: source.api_key is required")
	}

	if c.Cmd.Source.Version == "" {
		return fmt.Errorf("config: source.api_version is required")
	}

	return nil
}

// LogLevelValue maps the document's log level string to a slog.Level,
// following the same lenient string matching as the environment-variable
// getter this type mirrors.
func (c *Config) LogLevelValue() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Redacted returns a copy of c safe to log: the provider API key is masked
// per MaskSecret and the sink DSN has any embedded password stripped.
func (c *Config) Redacted() *Config {
	redacted := *c
	redacted.Cmd.Source.APIKey = MaskSecret(c.Cmd.Source.APIKey)
	redacted.Cmd.Sink.DSN = MaskDSN(c.Cmd.Sink.DSN)

	return &redacted
}
