// Package config loads kg settings from an optional TOML file overlaid with
// KG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/beadgraph/internal/filter"
)

// Sources the graph can be loaded from.
const (
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
	SourceFile     = "file"
)

// Change feeds that trigger a refresh.
const (
	WatchAuto = "auto"
	WatchNATS = "nats"
	WatchSSE  = "sse"
	WatchPoll = "poll"
	WatchNone = "none"
)

type Config struct {
	HTTPAddr  string `toml:"http_addr"`  // KG_HTTP_ADDR (default ":8090")
	GRPCAddr  string `toml:"grpc_addr"`  // KG_GRPC_ADDR (default ":9091"; empty = disabled)
	AuthToken string `toml:"auth_token"` // KG_AUTH_TOKEN (optional, empty = auth disabled)

	Source      string `toml:"source"`       // KG_SOURCE: http, postgres or file (inferred when empty)
	BeadsURL    string `toml:"beads_url"`    // KG_BEADS_URL (default "http://localhost:8080")
	BeadsToken  string `toml:"beads_token"`  // KG_BEADS_TOKEN
	DatabaseURL string `toml:"database_url"` // KG_DATABASE_URL
	File        string `toml:"file"`         // KG_FILE (JSON or YAML graph)
	GraphLimit  int    `toml:"graph_limit"`  // KG_GRAPH_LIMIT (0 = source default)

	Watch        string        `toml:"watch"`         // KG_WATCH: auto, nats, sse, poll or none
	NATSURL      string        `toml:"nats_url"`      // KG_NATS_URL (optional, empty = no events)
	PollInterval time.Duration `toml:"poll_interval"` // KG_POLL_INTERVAL (default 30s)

	Filter      string        `toml:"filter"`       // KG_FILTER (expr-lang expression)
	SessionIdle time.Duration `toml:"session_idle"` // KG_SESSION_IDLE (default 30m)

	Snapshot Snapshot `toml:"snapshot"`

	filter *filter.Filter
}

// Snapshot configures periodic graph exports.
type Snapshot struct {
	Schedule string  `toml:"schedule"` // KG_SNAPSHOT_SCHEDULE (cron; empty = disabled)
	Format   string  `toml:"format"`   // KG_SNAPSHOT_FORMAT (default "svg")
	Width    float64 `toml:"width"`    // KG_SNAPSHOT_WIDTH (default 1200)
	Height   float64 `toml:"height"`   // KG_SNAPSHOT_HEIGHT (default 800)
	File     string  `toml:"file"`     // KG_SNAPSHOT_FILE (enables a local copy when set)

	S3Bucket   string `toml:"s3_bucket"`   // KG_SNAPSHOT_S3_BUCKET (enables S3 when set)
	S3Endpoint string `toml:"s3_endpoint"` // KG_SNAPSHOT_S3_ENDPOINT (custom endpoint for MinIO)
	S3Region   string `toml:"s3_region"`   // KG_SNAPSHOT_S3_REGION (default "us-east-1")
	S3Key      string `toml:"s3_key"`      // KG_SNAPSHOT_S3_KEY (default "beads/graph.svg")
	S3History  bool   `toml:"s3_history"`  // KG_SNAPSHOT_S3_HISTORY

	GitRepo   string `toml:"git_repo"`   // KG_SNAPSHOT_GIT_REPO (enables git when set; path to clone)
	GitFile   string `toml:"git_file"`   // KG_SNAPSHOT_GIT_FILE (default "graph.svg")
	GitBranch string `toml:"git_branch"` // KG_SNAPSHOT_GIT_BRANCH (default "main")
}

// Enabled reports whether a schedule and at least one destination are set.
func (s Snapshot) Enabled() bool {
	return s.Schedule != "" && (s.File != "" || s.S3Bucket != "" || s.GitRepo != "")
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		HTTPAddr:     ":8090",
		GRPCAddr:     ":9091",
		BeadsURL:     "http://localhost:8080",
		Watch:        WatchAuto,
		PollInterval: 30 * time.Second,
		SessionIdle:  30 * time.Minute,
		Snapshot: Snapshot{
			Format:    "svg",
			Width:     1200,
			Height:    800,
			S3Region:  "us-east-1",
			S3Key:     "beads/graph.svg",
			GitFile:   "graph.svg",
			GitBranch: "main",
		},
	}
}

// Load reads the file named by KG_CONFIG, if any, applies KG_* variables
// and then overrides (command line flags) on top, and validates the result.
func Load(overrides ...func(*Config)) (*Config, error) {
	c := Default()
	if path := os.Getenv("KG_CONFIG"); path != "" {
		if err := c.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile overlays the TOML file at path onto c.
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return fmt.Errorf("reading config %s: unknown key %q", path, keys[0].String())
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = envOrDefault("KG_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = envOrDefault("KG_GRPC_ADDR", c.GRPCAddr)
	c.AuthToken = envOrDefault("KG_AUTH_TOKEN", c.AuthToken)
	c.Source = envOrDefault("KG_SOURCE", c.Source)
	c.BeadsURL = envOrDefault("KG_BEADS_URL", c.BeadsURL)
	c.BeadsToken = envOrDefault("KG_BEADS_TOKEN", c.BeadsToken)
	c.DatabaseURL = envOrDefault("KG_DATABASE_URL", c.DatabaseURL)
	c.File = envOrDefault("KG_FILE", c.File)
	c.Watch = envOrDefault("KG_WATCH", c.Watch)
	c.NATSURL = envOrDefault("KG_NATS_URL", c.NATSURL)
	c.Filter = envOrDefault("KG_FILTER", c.Filter)

	s := &c.Snapshot
	s.Schedule = envOrDefault("KG_SNAPSHOT_SCHEDULE", s.Schedule)
	s.Format = envOrDefault("KG_SNAPSHOT_FORMAT", s.Format)
	s.File = envOrDefault("KG_SNAPSHOT_FILE", s.File)
	s.S3Bucket = envOrDefault("KG_SNAPSHOT_S3_BUCKET", s.S3Bucket)
	s.S3Endpoint = envOrDefault("KG_SNAPSHOT_S3_ENDPOINT", s.S3Endpoint)
	s.S3Region = envOrDefault("KG_SNAPSHOT_S3_REGION", s.S3Region)
	s.S3Key = envOrDefault("KG_SNAPSHOT_S3_KEY", s.S3Key)
	s.GitRepo = envOrDefault("KG_SNAPSHOT_GIT_REPO", s.GitRepo)
	s.GitFile = envOrDefault("KG_SNAPSHOT_GIT_FILE", s.GitFile)
	s.GitBranch = envOrDefault("KG_SNAPSHOT_GIT_BRANCH", s.GitBranch)

	var err error
	if c.GraphLimit, err = envInt("KG_GRAPH_LIMIT", c.GraphLimit); err != nil {
		return err
	}
	if c.PollInterval, err = envDuration("KG_POLL_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	if c.SessionIdle, err = envDuration("KG_SESSION_IDLE", c.SessionIdle); err != nil {
		return err
	}
	if s.Width, err = envFloat("KG_SNAPSHOT_WIDTH", s.Width); err != nil {
		return err
	}
	if s.Height, err = envFloat("KG_SNAPSHOT_HEIGHT", s.Height); err != nil {
		return err
	}
	if s.S3History, err = envBool("KG_SNAPSHOT_S3_HISTORY", s.S3History); err != nil {
		return err
	}
	return nil
}

// Validate resolves the source, checks the settings it needs and compiles
// the filter.
func (c *Config) Validate() error {
	if c.Source == "" {
		switch {
		case c.DatabaseURL != "":
			c.Source = SourcePostgres
		case c.File != "":
			c.Source = SourceFile
		default:
			c.Source = SourceHTTP
		}
	}
	switch c.Source {
	case SourceHTTP:
		if c.BeadsURL == "" {
			return errors.New("KG_BEADS_URL is required for the http source")
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("KG_DATABASE_URL is required for the postgres source")
		}
	case SourceFile:
		if c.File == "" {
			return errors.New("KG_FILE is required for the file source")
		}
	default:
		return fmt.Errorf("KG_SOURCE: unknown source %q", c.Source)
	}

	switch c.Watch {
	case WatchAuto, WatchSSE, WatchPoll, WatchNone:
	case WatchNATS:
		if c.NATSURL == "" {
			return errors.New("KG_NATS_URL is required to watch NATS")
		}
	default:
		return fmt.Errorf("KG_WATCH: unknown mode %q", c.Watch)
	}
	if c.Watch == WatchSSE && c.Source != SourceHTTP {
		return errors.New("KG_WATCH: sse requires the http source")
	}
	if c.PollInterval <= 0 {
		return errors.New("KG_POLL_INTERVAL must be positive")
	}
	if c.GraphLimit < 0 {
		return errors.New("KG_GRAPH_LIMIT must not be negative")
	}
	if c.SessionIdle < 0 {
		return errors.New("KG_SESSION_IDLE must not be negative")
	}
	if f := c.Snapshot.Format; f != "svg" && f != "html" {
		return fmt.Errorf("KG_SNAPSHOT_FORMAT: unknown format %q", f)
	}

	f, err := filter.Compile(c.Filter)
	if err != nil {
		return fmt.Errorf("KG_FILTER: %w", err)
	}
	c.filter = f
	return nil
}

// IssueFilter returns the compiled filter; nil matches every issue.
func (c *Config) IssueFilter() *filter.Filter { return c.filter }

// WatchMode resolves "auto": NATS when a URL is set, the beads SSE stream
// for the http source, polling otherwise.
func (c *Config) WatchMode() string {
	if c.Watch != WatchAuto {
		return c.Watch
	}
	switch {
	case c.NATSURL != "":
		return WatchNATS
	case c.Source == SourceHTTP:
		return WatchSSE
	}
	return WatchPoll
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
