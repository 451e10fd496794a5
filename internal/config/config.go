package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"news_scanner/internal/domain"
)

const (
	DefaultPath      = "config.json"
	DefaultChannel   = "#test-n"
	MaxBaseTick      = 60 * time.Second
	BackendFile      = "file"
	BackendPostgres  = "postgres"
	defaultStateFile = "news-state.json"
)

// Config is the on-disk configuration. Files ending in .yaml or .yml are
// decoded as YAML, anything else as JSON.
type Config struct {
	Sources             []SourceConfig    `json:"sources" yaml:"sources"`
	Perplexity          *PerplexityConfig `json:"perplexity" yaml:"perplexity"`
	ScanIntervalSecs    int               `json:"scan_interval_secs" yaml:"scan_interval_secs"`
	StateFile           string            `json:"state_file" yaml:"state_file"`
	StateBackend        string            `json:"state_backend" yaml:"state_backend"`
	SlackWebhookURL     string            `json:"slack_webhook_url" yaml:"slack_webhook_url"`
	SlackChannel        string            `json:"slack_channel" yaml:"slack_channel"`
	MaxResults          int               `json:"max_results" yaml:"max_results"`
	SearchRecencyFilter string            `json:"search_recency_filter" yaml:"search_recency_filter"`
	HTTPTimeoutSecs     int               `json:"http_timeout_secs" yaml:"http_timeout_secs"`
	PassTimeoutSecs     int               `json:"pass_timeout_secs" yaml:"pass_timeout_secs"`
	Database            DatabaseConfig    `json:"database" yaml:"database"`
	RabbitMQ            RabbitMQConfig    `json:"rabbitmq" yaml:"rabbitmq"`
	MetricsAddr         string            `json:"metrics_addr" yaml:"metrics_addr"`
	LogLevel            string            `json:"log_level" yaml:"log_level"`
}

// SourceConfig is one entry of the sources list.
type SourceConfig struct {
	Sites        []string `json:"sites" yaml:"sites"`
	Query        string   `json:"query" yaml:"query"`
	Time         *int     `json:"time" yaml:"time"` // minutes; nil means default
	SlackChannel string   `json:"slack_channel" yaml:"slack_channel"`
}

// PerplexityConfig is the single-source schema used instead of sources.
type PerplexityConfig struct {
	Query               string   `json:"query" yaml:"query"`
	MaxResults          int      `json:"max_results" yaml:"max_results"`
	SearchRecencyFilter string   `json:"search_recency_filter" yaml:"search_recency_filter"`
	SearchDomainFilter  []string `json:"search_domain_filter" yaml:"search_domain_filter"`
}

type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Exchange   string `json:"exchange" yaml:"exchange"`
	RoutingKey string `json:"routing_key" yaml:"routing_key"`
	QueueName  string `json:"queue_name" yaml:"queue_name"`
}

// Enabled reports whether new items should be published to RabbitMQ.
func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Env holds settings that only come from the environment.
type Env struct {
	PerplexityAPIKey string
	SlackBotToken    string
	SlackChannel     string
}

// LoadEnv reads .env (if present) and the process environment.
func LoadEnv() Env {
	_ = godotenv.Load()

	return Env{
		PerplexityAPIKey: os.Getenv("PERPLEXITY_API_KEY"),
		SlackBotToken:    os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannel:     os.Getenv("SLACK_CHANNEL"),
	}
}

// Path returns the config path from the flag, then CONFIG, then the default.
func Path(flagValue string) string {
	return Resolve(flagValue, os.Getenv("CONFIG"), DefaultPath)
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := decode(path, data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.expandEnv()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references in the connection and secret
// fields only. Queries, sites and channels are taken literally.
func (c *Config) expandEnv() {
	for _, field := range []*string{
		&c.SlackWebhookURL,
		&c.RabbitMQ.URL,
		&c.Database.Host,
		&c.Database.User,
		&c.Database.Password,
		&c.Database.DBName,
	} {
		*field = expandRefs(*field)
	}
}

func expandRefs(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})
}

func (c *Config) setDefaults() {
	if c.ScanIntervalSecs <= 0 {
		c.ScanIntervalSecs = 300
	}
	if c.StateFile == "" {
		c.StateFile = defaultStateFile
	}
	if c.StateBackend == "" {
		c.StateBackend = BackendFile
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 50
	}
	if c.Perplexity != nil && c.Perplexity.MaxResults <= 0 {
		c.Perplexity.MaxResults = 10
	}
	if c.HTTPTimeoutSecs <= 0 {
		c.HTTPTimeoutSecs = 30
	}
	if c.PassTimeoutSecs <= 0 {
		c.PassTimeoutSecs = 300
	}
	if c.RabbitMQ.Enabled() {
		if c.RabbitMQ.Exchange == "" {
			c.RabbitMQ.Exchange = "news_scanner"
		}
		if c.RabbitMQ.RoutingKey == "" {
			c.RabbitMQ.RoutingKey = "news_items"
		}
		if c.RabbitMQ.QueueName == "" {
			c.RabbitMQ.QueueName = "news_items"
		}
	}
	if c.StateBackend == BackendPostgres {
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if len(c.Sources) == 0 && c.Perplexity == nil {
		return errors.New("no sources configured")
	}
	for i, s := range c.Sources {
		if s.Query == "" {
			return fmt.Errorf("source %d: empty query", i)
		}
		if s.Time != nil && *s.Time < 0 {
			return fmt.Errorf("source %d: negative time", i)
		}
	}
	if len(c.Sources) == 0 && c.Perplexity.Query == "" {
		return errors.New("perplexity: empty query")
	}
	switch c.StateBackend {
	case BackendFile, BackendPostgres:
	default:
		return fmt.Errorf("unknown state_backend %q", c.StateBackend)
	}
	return nil
}

// SingleSource reports whether the legacy single-source schema is in use.
func (c *Config) SingleSource() bool {
	return len(c.Sources) == 0 && c.Perplexity != nil
}

// ScanSources converts the configuration into immutable sources.
func (c *Config) ScanSources() []domain.Source {
	if c.SingleSource() {
		p := c.Perplexity
		return []domain.Source{{
			Name:       "perplexity",
			Sites:      p.SearchDomainFilter,
			Query:      p.Query,
			MaxResults: p.MaxResults,
		}}
	}

	sources := make([]domain.Source, 0, len(c.Sources))
	for i, s := range c.Sources {
		minutes := 60
		if s.Time != nil {
			minutes = *s.Time
		}
		sources = append(sources, domain.Source{
			Name:     fmt.Sprintf("source-%d", i),
			Sites:    s.Sites,
			Query:    s.Query,
			Interval: time.Duration(minutes) * time.Minute,
			Channel:  s.SlackChannel,
		})
	}
	return sources
}

// RecencyFilter returns the effective search_recency_filter.
func (c *Config) RecencyFilter() string {
	if c.SingleSource() {
		return Resolve(c.Perplexity.SearchRecencyFilter, c.SearchRecencyFilter)
	}
	return c.SearchRecencyFilter
}

// ScanInterval is the configured scan_interval_secs as a duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSecs) * time.Second
}

// BaseTick is the period of the scheduler's base timer. The single-source
// schema ticks exactly at the scan interval; the multi-source schema ticks
// at most once a minute so per-source intervals are honoured.
func (c *Config) BaseTick() time.Duration {
	if c.SingleSource() {
		return c.ScanInterval()
	}
	return min(c.ScanInterval(), MaxBaseTick)
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs) * time.Second
}

func (c *Config) PassTimeout() time.Duration {
	return time.Duration(c.PassTimeoutSecs) * time.Second
}

// DefaultChannel resolves the fallback Slack channel: global config,
// then SLACK_CHANNEL, then DefaultChannel.
func (c *Config) DefaultChannel(env Env) string {
	return Resolve(c.SlackChannel, env.SlackChannel, DefaultChannel)
}

// StartupChannel is where the startup message goes: SLACK_CHANNEL, then
// DefaultChannel. Config-level channels do not apply to it.
func (e Env) StartupChannel() string {
	return Resolve(e.SlackChannel, DefaultChannel)
}

// Resolve returns the first non-zero candidate, in order of precedence.
func Resolve[T comparable](candidates ...T) T {
	var zero T
	for _, c := range candidates {
		if c != zero {
			return c
		}
	}
	return zero
}

// ScanConfig holds the global defaults applied to every source.
type ScanConfig struct {
	MaxResults     int
	RecencyFilter  string
	DefaultChannel string
}

// Scan returns the global scan defaults, resolving the fallback channel.
func (c *Config) Scan(env Env) ScanConfig {
	return ScanConfig{
		MaxResults:     c.MaxResults,
		RecencyFilter:  c.RecencyFilter(),
		DefaultChannel: c.DefaultChannel(env),
	}
}
