// Package config loads process configuration from an optional YAML file
// overlaid by environment variables. Load validates the result so a
// misconfigured process refuses to start.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	dErrors "confirmit/pkg/domain-errors"
)

// Driver selectors.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverKafka    = "kafka"
	DriverMinio    = "minio"
	DriverHTTP     = "http"
	DriverOpenAI   = "openai"
)

// FreshnessWindow is how long a reputation record is served without a refresh.
const FreshnessWindow = 7 * 24 * time.Hour

type Config struct {
	Environment string         `yaml:"environment"`
	LogLevel    string         `yaml:"log_level"`
	Server      Server         `yaml:"server"`
	Storage     Storage        `yaml:"storage"`
	Redis       RedisConfig    `yaml:"redis"`
	Reputation  Reputation     `yaml:"reputation"`
	Ledger      Ledger         `yaml:"ledger"`
	Assets      Assets         `yaml:"assets"`
	Analysis    Analysis       `yaml:"analysis"`
	Business    Business       `yaml:"business"`
	Progress    Progress       `yaml:"progress"`
	Pipeline    PipelineConfig `yaml:"pipeline"`
	RateLimit   RateLimit      `yaml:"rate_limit"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string   `yaml:"addr"`
	AdminToken     string   `yaml:"admin_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
}

type Storage struct {
	Driver          string        `yaml:"driver"`
	DatabaseURL     string        `yaml:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Reputation struct {
	OracleURL       string        `yaml:"oracle_url"`
	OracleAPIKey    string        `yaml:"oracle_api_key"`
	OracleTimeout   time.Duration `yaml:"oracle_timeout"`
	FreshnessWindow time.Duration `yaml:"freshness_window"`
}

type Ledger struct {
	Driver          string        `yaml:"driver"`
	Brokers         []string      `yaml:"brokers"`
	Topic           string        `yaml:"topic"`
	ExplorerBaseURL string        `yaml:"explorer_base_url"`
	SubmitTimeout   time.Duration `yaml:"submit_timeout"`
}

type Assets struct {
	Driver        string        `yaml:"driver"`
	Endpoint      string        `yaml:"endpoint"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	UseSSL        bool          `yaml:"use_ssl"`
	PublicBaseURL string        `yaml:"public_base_url"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`
}

type Analysis struct {
	Driver       string        `yaml:"driver"`
	BaseURL      string        `yaml:"base_url"`
	OpenAIAPIKey string        `yaml:"openai_api_key"`
	OpenAIModel  string        `yaml:"openai_model"`
	Timeout      time.Duration `yaml:"timeout"`
}

type Business struct {
	// SealingKey is a hex encoded 32 byte key for bank account sealing.
	SealingKey string `yaml:"sealing_key"`
}

type Progress struct {
	Driver     string `yaml:"driver"`
	BufferSize int    `yaml:"buffer_size"`
}

type PipelineConfig struct {
	AnchorByDefault bool `yaml:"anchor_by_default"`
}

// RateLimit bounds public write endpoints per client IP.
type RateLimit struct {
	Driver   string `yaml:"driver"`
	Disabled bool   `yaml:"disabled"`
	Scan     Limit  `yaml:"scan"`
	Report   Limit  `yaml:"report"`
	Lookup   Limit  `yaml:"lookup"`
	Register Limit  `yaml:"register"`
}

type Limit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Default returns a development configuration backed by in-memory adapters.
// Required credentials are left empty and must be supplied.
func Default() Config {
	return Config{
		Environment: "development",
		LogLevel:    "info",
		Server: Server{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			MaxUploadBytes: 10 << 20,
		},
		Storage: Storage{
			Driver:          DriverMemory,
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Reputation: Reputation{
			OracleTimeout:   3 * time.Second,
			FreshnessWindow: FreshnessWindow,
		},
		Ledger: Ledger{
			Driver:          DriverMemory,
			Topic:           "confirmit.anchors",
			ExplorerBaseURL: "https://explorer.confirmit.local/messages",
			SubmitTimeout:   30 * time.Second,
		},
		Assets: Assets{
			Driver:        DriverMemory,
			Bucket:        "receipts",
			UploadTimeout: 30 * time.Second,
		},
		Analysis: Analysis{
			Driver:      DriverHTTP,
			OpenAIModel: "gpt-4o-mini",
			Timeout:     60 * time.Second,
		},
		Progress: Progress{
			Driver:     DriverMemory,
			BufferSize: 16,
		},
		RateLimit: RateLimit{
			Driver:   DriverMemory,
			Scan:     Limit{Requests: 20, Window: time.Minute},
			Report:   Limit{Requests: 5, Window: time.Hour},
			Lookup:   Limit{Requests: 60, Window: time.Minute},
			Register: Limit{Requests: 3, Window: time.Hour},
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates. Every failure carries CodeConfiguration.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "parse config file")
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every missing or malformed setting in one error.
func (c *Config) Validate() error {
	var errs []error
	missing := func(field string) {
		errs = append(errs, fmt.Errorf("%s is required", field))
	}

	if c.Server.Addr == "" {
		missing("server.addr")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			missing("storage.database_url")
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	if c.Reputation.OracleURL == "" {
		missing("reputation.oracle_url")
	}
	if c.Reputation.OracleTimeout <= 0 {
		errs = append(errs, errors.New("reputation.oracle_timeout must be positive"))
	}
	if c.Reputation.FreshnessWindow <= 0 {
		errs = append(errs, errors.New("reputation.freshness_window must be positive"))
	}

	switch c.Ledger.Driver {
	case DriverMemory:
	case DriverKafka:
		if len(c.Ledger.Brokers) == 0 {
			missing("ledger.brokers")
		}
		if c.Ledger.Topic == "" {
			missing("ledger.topic")
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger.driver %q", c.Ledger.Driver))
	}

	switch c.Assets.Driver {
	case DriverMemory:
	case DriverMinio:
		if c.Assets.Endpoint == "" {
			missing("assets.endpoint")
		}
		if c.Assets.AccessKey == "" || c.Assets.SecretKey == "" {
			missing("assets.access_key and assets.secret_key")
		}
		if c.Assets.Bucket == "" {
			missing("assets.bucket")
		}
	default:
		errs = append(errs, fmt.Errorf("unknown assets.driver %q", c.Assets.Driver))
	}

	switch c.Analysis.Driver {
	case DriverHTTP:
		if c.Analysis.BaseURL == "" {
			missing("analysis.base_url")
		}
	case DriverOpenAI:
		if c.Analysis.OpenAIAPIKey == "" {
			missing("analysis.openai_api_key")
		}
	default:
		errs = append(errs, fmt.Errorf("unknown analysis.driver %q", c.Analysis.Driver))
	}

	if _, err := c.Business.SealingKeyBytes(); err != nil {
		errs = append(errs, err)
	}

	switch c.Progress.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.URL == "" {
			missing("redis.url")
		}
	default:
		errs = append(errs, fmt.Errorf("unknown progress.driver %q", c.Progress.Driver))
	}

	switch c.RateLimit.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.URL == "" {
			missing("redis.url")
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rate_limit.driver %q", c.RateLimit.Driver))
	}
	for name, l := range map[string]Limit{
		"scan":     c.RateLimit.Scan,
		"report":   c.RateLimit.Report,
		"lookup":   c.RateLimit.Lookup,
		"register": c.RateLimit.Register,
	} {
		if l.Requests <= 0 || l.Window <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.%s needs positive requests and window", name))
		}
	}

	if len(errs) > 0 {
		return dErrors.Wrap(errors.Join(errs...), dErrors.CodeConfiguration, "invalid configuration")
	}
	return nil
}

// SealingKeyBytes decodes the bank account sealing key.
func (b Business) SealingKeyBytes() ([]byte, error) {
	if b.SealingKey == "" {
		return nil, errors.New("business.sealing_key is required")
	}
	key, err := hex.DecodeString(b.SealingKey)
	if err != nil || len(key) != 32 {
		return nil, errors.New("business.sealing_key must be 64 hex characters")
	}
	return key, nil
}

// IsDevelopment reports whether the process runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func applyEnv(c *Config) error {
	setString(&c.Environment, "CONFIRMIT_ENV")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Server.Addr, "CONFIRMIT_ADDR")
	setString(&c.Server.AdminToken, "ADMIN_API_TOKEN")
	setList(&c.Server.AllowedOrigins, "CORS_ALLOWED_ORIGINS")

	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.DatabaseURL, "DATABASE_URL")
	setString(&c.Redis.URL, "REDIS_URL")

	setString(&c.Reputation.OracleURL, "REPUTATION_ORACLE_URL")
	setString(&c.Reputation.OracleAPIKey, "REPUTATION_ORACLE_API_KEY")
	if err := setDuration(&c.Reputation.OracleTimeout, "REPUTATION_ORACLE_TIMEOUT"); err != nil {
		return err
	}

	setString(&c.Ledger.Driver, "LEDGER_DRIVER")
	setList(&c.Ledger.Brokers, "LEDGER_BROKERS")
	setString(&c.Ledger.Topic, "LEDGER_TOPIC")
	setString(&c.Ledger.ExplorerBaseURL, "LEDGER_EXPLORER_BASE_URL")
	if err := setDuration(&c.Ledger.SubmitTimeout, "LEDGER_SUBMIT_TIMEOUT"); err != nil {
		return err
	}

	setString(&c.Assets.Driver, "ASSETS_DRIVER")
	setString(&c.Assets.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Assets.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Assets.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Assets.Bucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeConfiguration, "MINIO_USE_SSL must be a boolean")
		}
		c.Assets.UseSSL = b
	}

	setString(&c.Analysis.Driver, "ANALYSIS_DRIVER")
	setString(&c.Analysis.BaseURL, "ANALYSIS_BASE_URL")
	setString(&c.Analysis.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Analysis.OpenAIModel, "OPENAI_MODEL")

	setString(&c.Business.SealingKey, "BUSINESS_SEALING_KEY")
	setString(&c.Progress.Driver, "PROGRESS_DRIVER")

	setString(&c.RateLimit.Driver, "RATE_LIMIT_DRIVER")
	if v := os.Getenv("RATE_LIMIT_DISABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeConfiguration, "RATE_LIMIT_DISABLED must be a boolean")
		}
		c.RateLimit.Disabled = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeConfiguration, key+" must be a duration")
	}
	*dst = d
	return nil
}
