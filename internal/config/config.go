package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Listen          string        `yaml:"listen"` // :8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|text
}

type StoreConfig struct {
	Type     string        `yaml:"type"`      // memory|postgres
	SeedPath string        `yaml:"seed_path"` // memory: optional JSON seed file
	DSN      string        `yaml:"dsn"`       // postgres: overridden by DATABASE_URL
	MaxConns int32         `yaml:"max_conns"`
	Migrate  bool          `yaml:"migrate"` // apply embedded migrations at start
	Timeout  time.Duration `yaml:"timeout"` // per store query
}

type AggregatorConfig struct {
	Interval      time.Duration `yaml:"interval"`       // store re-read + outer cadence
	SourceTimeout time.Duration `yaml:"source_timeout"` // default per-source fetch timeout
	Window        time.Duration `yaml:"window"`         // store query window, 0 = everything
	StatePath     string        `yaml:"state_path"`     // optional snapshot file for warm start
}

type CommonHTTP struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"` // attempts (e.g. 3)
	Backoff    time.Duration `yaml:"backoff"`     // initial backoff (e.g. 500ms)
	MaxBackoff time.Duration `yaml:"max_backoff"` // cap (e.g. 5s)
}

type OONIConfig struct {
	BaseURL         string            `yaml:"base_url"` // https://api.ooni.io
	HTTP            CommonHTTP        `yaml:"http"`
	Retry           RetryConfig       `yaml:"retry"`
	CountryCode     string            `yaml:"country_code"` // IN
	TestName        string            `yaml:"test_name"`    // web_connectivity
	Window          time.Duration     `yaml:"window"`       // rolling window, e.g. 168h
	Limit           int               `yaml:"limit"`
	MinFailureRate  float64           `yaml:"min_failure_rate"` // 0..1
	MinMeasurements int               `yaml:"min_measurements"`
	ASNRegions      map[string]string `yaml:"asn_regions"` // "AS45609": "Manipur"
	ASNNames        map[string]string `yaml:"asn_names"`   // "AS45609": "Airtel"
	DefaultRegion   string            `yaml:"default_region"`
}

type SFLCConfig struct {
	URL   string      `yaml:"url"` // JSON feed of the shutdown tracker
	HTTP  CommonHTTP  `yaml:"http"`
	Retry RetryConfig `yaml:"retry"`
}

type CloudflareConfig struct {
	BaseURL   string      `yaml:"base_url"`  // https://api.cloudflare.com/client/v4
	APIToken  string      `yaml:"api_token"` // overridden by CLOUDFLARE_API_TOKEN
	HTTP      CommonHTTP  `yaml:"http"`
	Retry     RetryConfig `yaml:"retry"`
	Location  string      `yaml:"location"`   // IN
	DateRange string      `yaml:"date_range"` // 7d
	Limit     int         `yaml:"limit"`
}

type SourceConfig struct {
	Type       string           `yaml:"type"` // ooni|sflc|cloudflare
	Name       string           `yaml:"name"` // defaults to type
	Interval   time.Duration    `yaml:"interval"`
	Timeout    time.Duration    `yaml:"timeout"`
	OONI       OONIConfig       `yaml:"ooni"`
	SFLC       SFLCConfig       `yaml:"sflc"`
	Cloudflare CloudflareConfig `yaml:"cloudflare"`
}

type KeywordRule struct {
	When     []string `yaml:"when"`     // substrings (case-insensitive), any of them matches the reason
	Category string   `yaml:"category"` // reason category to assign
}

type RegexRule struct {
	Field    string `yaml:"field"` // reason|region|subregion
	Expr     string `yaml:"expr"`
	Category string `yaml:"category"`
}

type MapRule struct {
	Field   string            `yaml:"field"`   // region|subregion
	Mapping map[string]string `yaml:"mapping"` // e.g. "J&K": "Jammu & Kashmir"
}

type PostProcessConfig struct {
	Keywords []KeywordRule `yaml:"keywords"`
	Regex    []RegexRule   `yaml:"regex"`
	Maps     []MapRule     `yaml:"maps"`
	// Skip the built-in keyword rules and only use the ones above.
	NoDefaults bool `yaml:"no_defaults"`
}

type DedupConfig struct {
	Enable  bool          `yaml:"enable"`
	TTL     time.Duration `yaml:"ttl"`      // e.g. 168h (7d)
	MaxKeys int           `yaml:"max_keys"` // cap to bound memory
}

type KafkaConfig struct {
	Brokers  []string      `yaml:"brokers"` // overridden by KAFKA_BROKERS (comma separated)
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"client_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LokiConfig struct {
	URL       string        `yaml:"url"`       // http://loki:3100
	TenantID  string        `yaml:"tenant_id"` // optional multi-tenancy
	Job       string        `yaml:"job"`       // label value, default: shutdown-tracker
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type SinksConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
	Loki  LokiConfig  `yaml:"loki"`
}

type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"` // /metrics
}

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Log        LogConfig         `yaml:"log"`
	Store      StoreConfig       `yaml:"store"`
	Aggregator AggregatorConfig  `yaml:"aggregator"`
	Sources    []SourceConfig    `yaml:"sources"`
	Post       PostProcessConfig `yaml:"postprocess"`
	Dedup      DedupConfig       `yaml:"dedup"`
	Sinks      SinksConfig       `yaml:"sinks"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// Load reads an optional .env, the YAML file at path, then applies environment
// overrides and defaults. An empty path yields a defaults-only config.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DSN = v
		if c.Store.Type == "" {
			c.Store.Type = "postgres"
		}
	}
	if v := os.Getenv("LISTEN_ADDRESS"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CLOUDFLARE_API_TOKEN"); v != "" {
		for i := range c.Sources {
			if c.Sources[i].Type == "cloudflare" {
				c.Sources[i].Cloudflare.APIToken = v
			}
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Sinks.Kafka.Brokers = brokers
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	c.Server.ReadTimeout = defaultDur(c.Server.ReadTimeout, 10*time.Second)
	c.Server.WriteTimeout = defaultDur(c.Server.WriteTimeout, 30*time.Second)
	c.Server.ShutdownTimeout = defaultDur(c.Server.ShutdownTimeout, 10*time.Second)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	c.Store.Timeout = defaultDur(c.Store.Timeout, 10*time.Second)
	if c.Store.MaxConns <= 0 {
		c.Store.MaxConns = 10
	}
	c.Aggregator.Interval = defaultDur(c.Aggregator.Interval, 5*time.Minute)
	c.Aggregator.SourceTimeout = defaultDur(c.Aggregator.SourceTimeout, 20*time.Second)
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Name == "" {
			s.Name = s.Type
		}
		s.Timeout = defaultDur(s.Timeout, c.Aggregator.SourceTimeout)
	}
	if c.Dedup.Enable {
		c.Dedup.TTL = defaultDur(c.Dedup.TTL, 168*time.Hour)
		if c.Dedup.MaxKeys <= 0 {
			c.Dedup.MaxKeys = 50000
		}
	}
	if c.Sinks.Kafka.ClientID == "" {
		c.Sinks.Kafka.ClientID = "shutdown-tracker"
	}
	c.Sinks.Kafka.Timeout = defaultDur(c.Sinks.Kafka.Timeout, 10*time.Second)
	if c.Sinks.Loki.Job == "" {
		c.Sinks.Loki.Job = "shutdown-tracker"
	}
	c.Sinks.Loki.Timeout = defaultDur(c.Sinks.Loki.Timeout, 10*time.Second)
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c Config) Validate() error {
	switch c.Store.Type {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store: postgres requires dsn or DATABASE_URL")
		}
	default:
		return fmt.Errorf("store: unknown type %q", c.Store.Type)
	}
	if c.Aggregator.Window < 0 {
		return errors.New("aggregator: window must not be negative")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		switch s.Type {
		case "ooni", "sflc", "cloudflare":
		default:
			return fmt.Errorf("sources: unknown type %q", s.Type)
		}
		if s.Interval < 0 || s.Timeout < 0 {
			return fmt.Errorf("sources: %s: negative interval or timeout", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("sources: duplicate name %q", s.Name)
		}
		seen[s.Name] = true
	}
	if c.Sinks.Kafka.Topic != "" && len(c.Sinks.Kafka.Brokers) == 0 {
		return errors.New("sinks.kafka: topic set but no brokers")
	}
	return nil
}

// KafkaEnabled reports whether a Kafka sink should be built.
func (c Config) KafkaEnabled() bool {
	return len(c.Sinks.Kafka.Brokers) > 0 && c.Sinks.Kafka.Topic != ""
}

func defaultDur(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
