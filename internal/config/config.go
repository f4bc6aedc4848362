// Package config loads vbk-watch settings from defaults, an optional config
// file and VBK_-prefixed environment variables, in increasing precedence.
//
// Nested keys map to environment variables by upper-casing and replacing dots
// with underscores: nodecore.url is read from VBK_NODECORE_URL.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "VBK"

// Config is the full application configuration.
type Config struct {
	NodeCore  NodeCoreConfig  `mapstructure:"nodecore"`
	Faucet    FaucetConfig    `mapstructure:"faucet"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	AWS       AWSConfig       `mapstructure:"aws"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Watcher   WatcherConfig   `mapstructure:"watcher"`
	TxConfirm TxConfirmConfig `mapstructure:"txconfirm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// NodeCoreConfig configures the NodeCore JSON-RPC client.
type NodeCoreConfig struct {
	URL        string        `mapstructure:"url"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// FaucetConfig configures the test-coin faucet client.
type FaucetConfig struct {
	URL               string  `mapstructure:"url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// RedisConfig configures the anchor cache. An empty Addr selects the in-memory cache.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// PostgresConfig configures anchor persistence. An empty URL selects the in-memory repository.
type PostgresConfig struct {
	URL           string `mapstructure:"url"`
	MaxConns      int32  `mapstructure:"max_conns"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// AWSConfig configures SNS publishing, S3 block archiving and the SQS lookup queue.
type AWSConfig struct {
	Region string `mapstructure:"region"`
	// Endpoint overrides the SNS, SQS and S3 endpoints (e.g. LocalStack).
	Endpoint       string `mapstructure:"endpoint"`
	SNSTopicARN    string `mapstructure:"sns_topic_arn"`
	ArchiveBucket  string `mapstructure:"archive_bucket"`
	LookupQueueURL string `mapstructure:"lookup_queue_url"`
	// AccessKeyID and SecretAccessKey override the default credential chain
	// when both are set (e.g. "test"/"test" against LocalStack).
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// HTTPConfig configures the health and API server.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WatcherConfig configures tip polling.
type WatcherConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
	SearchLength  int           `mapstructure:"search_length"`
	VerifyHeaders bool          `mapstructure:"verify_headers"`
}

// TxConfirmConfig configures the transaction confirm/send scenario.
type TxConfirmConfig struct {
	TxCount      int           `mapstructure:"tx_count"`
	Amount       float64       `mapstructure:"amount"`
	SendInterval time.Duration `mapstructure:"send_interval"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// SetDefaults registers every key with its default value. Keys must be
// registered for environment variables to be picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("nodecore.url", "http://localhost:10600/api")
	v.SetDefault("nodecore.username", "")
	v.SetDefault("nodecore.password", "")
	v.SetDefault("nodecore.timeout", 30*time.Second)
	v.SetDefault("nodecore.max_retries", 3)

	v.SetDefault("faucet.url", "http://95.217.67.120/alt-integration/api/v1.0/faucet")
	v.SetDefault("faucet.requests_per_second", 1.0)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("redis.key_prefix", "vbk")

	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.migrations_dir", "db/migrations")

	v.SetDefault("aws.region", "eu-west-1")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.sns_topic_arn", "")
	v.SetDefault("aws.archive_bucket", "")
	v.SetDefault("aws.lookup_queue_url", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("watcher.poll_interval", 10*time.Second)
	v.SetDefault("watcher.health_timeout", 5*time.Minute)
	v.SetDefault("watcher.search_length", 10)
	v.SetDefault("watcher.verify_headers", true)

	v.SetDefault("txconfirm.tx_count", 30)
	v.SetDefault("txconfirm.amount", 0.1)
	v.SetDefault("txconfirm.send_interval", 2*time.Second)
	v.SetDefault("txconfirm.concurrency", 3)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "vbk-watch")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.sample_rate", 1.0)
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile (if non-empty) into v and decodes the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var errs []error

	if err := validateURL("nodecore.url", c.NodeCore.URL); err != nil {
		errs = append(errs, err)
	}
	if c.Faucet.URL != "" {
		if err := validateURL("faucet.url", c.Faucet.URL); err != nil {
			errs = append(errs, err)
		}
	}
	if c.AWS.LookupQueueURL != "" {
		if err := validateURL("aws.lookup_queue_url", c.AWS.LookupQueueURL); err != nil {
			errs = append(errs, err)
		}
	}
	if c.NodeCore.Timeout < 0 {
		errs = append(errs, errors.New("nodecore.timeout must not be negative"))
	}
	if c.Faucet.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("faucet.requests_per_second must not be negative"))
	}
	if c.Watcher.PollInterval <= 0 {
		errs = append(errs, errors.New("watcher.poll_interval must be positive"))
	}
	if c.Watcher.SearchLength < 0 {
		errs = append(errs, errors.New("watcher.search_length must not be negative"))
	}
	if c.TxConfirm.TxCount <= 0 {
		errs = append(errs, errors.New("txconfirm.tx_count must be positive"))
	}
	if c.TxConfirm.Amount <= 0 {
		errs = append(errs, errors.New("txconfirm.amount must be positive"))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry.sample_rate must be between 0 and 1"))
	}

	return errors.Join(errs...)
}

func validateURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", key, raw)
	}
	return nil
}
