// Package config loads process configuration from config/config.yaml, an
// optional .env file and MPMAIL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sungwon/mpmail/internal/delivery"
	"github.com/sungwon/mpmail/internal/logger"
	"github.com/sungwon/mpmail/internal/msgstore"
	"github.com/sungwon/mpmail/internal/provider"
	"github.com/sungwon/mpmail/internal/queue"
	"github.com/sungwon/mpmail/internal/smtp"
)

// EnvPrefix is prepended to every environment override, e.g.
// MPMAIL_DRAIN_TOKEN overrides drain.token.
const EnvPrefix = "MPMAIL"

// Config holds all application configuration.
type Config struct {
	API      APIConfig       `mapstructure:"api"`
	Delivery DeliveryConfig  `mapstructure:"delivery"`
	Store    msgstore.Config `mapstructure:"store"`
	Drain    DrainConfig     `mapstructure:"drain"`
	Relay    RelayConfig     `mapstructure:"relay"`
	SMTP     smtp.Config     `mapstructure:"smtp"`
	Logging  logger.Config   `mapstructure:"logging"`
}

// APIConfig holds HTTP server configuration.
type APIConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// SendToken guards POST /api/v1/messages. Empty leaves it open.
	SendToken string `mapstructure:"send_token"`
}

// Addr returns host:port.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DeliveryConfig selects the provider and the default sender identity.
type DeliveryConfig struct {
	provider.ProviderConfig `mapstructure:",squash"`
	Sender                  delivery.Sender `mapstructure:"sender"`
}

// DrainConfig holds the drain endpoint settings.
type DrainConfig struct {
	queue.DrainConfig `mapstructure:",squash"`
	// Token is the shared bearer secret, plain or bcrypt-hashed. Empty
	// leaves the endpoint open.
	Token string `mapstructure:"token"`
}

// RelayConfig configures the reference queue consumer.
type RelayConfig struct {
	DrainURL      string                  `mapstructure:"drain_url"`
	Token         string                  `mapstructure:"token"`
	Interval      time.Duration           `mapstructure:"interval"`
	BatchSize     int                     `mapstructure:"batch_size"`
	Concurrency   int                     `mapstructure:"concurrency"`
	MaxRetries    int                     `mapstructure:"max_retries"`
	RatePerSecond float64                 `mapstructure:"rate_per_second"`
	Burst         int                     `mapstructure:"burst"`
	MetricsAddr   string                  `mapstructure:"metrics_addr"`
	Delivery      provider.ProviderConfig `mapstructure:"delivery"`
}

var defaults = map[string]any{
	"api.host":            "0.0.0.0",
	"api.port":            8080,
	"api.read_timeout":    "10s",
	"api.write_timeout":   "45s",
	"api.request_timeout": "30s",
	"api.send_token":      "",

	"delivery.provider":         "",
	"delivery.api_key":          "",
	"delivery.secret_key":       "",
	"delivery.endpoint":         "",
	"delivery.timeout":          "30s",
	"delivery.region":           "",
	"delivery.domain":           "",
	"delivery.username":         "",
	"delivery.password":         "",
	"delivery.tls_mode":         "",
	"delivery.dkim_domain":      "",
	"delivery.dkim_selector":    "",
	"delivery.dkim_private_key": "",
	"delivery.sender.from":      "",
	"delivery.sender.from_name": "",

	"store.type":           "local",
	"store.name":           "email_queue",
	"store.path":           "",
	"store.s3_bucket":      "",
	"store.s3_prefix":      "",
	"store.s3_endpoint":    "",
	"store.s3_region":      "",
	"store.redis_addr":     "localhost:6379",
	"store.redis_password": "",
	"store.redis_db":       0,
	"store.dsn":            "",
	"store.pool_min":       1,
	"store.pool_max":       10,
	"store.timeout":        "10s",

	"drain.token":              "",
	"drain.default_batch_size": queue.DefaultBatchSize,
	"drain.max_batch_size":     queue.MaxBatchSize,

	"relay.drain_url":       "http://localhost:8080/queue/drain",
	"relay.token":           "",
	"relay.interval":        "15s",
	"relay.batch_size":      queue.DefaultBatchSize,
	"relay.concurrency":     4,
	"relay.max_retries":     3,
	"relay.rate_per_second": 10.0,
	"relay.burst":           5,
	"relay.metrics_addr":    ":9091",

	"relay.delivery.provider":         "",
	"relay.delivery.api_key":          "",
	"relay.delivery.secret_key":       "",
	"relay.delivery.endpoint":         "",
	"relay.delivery.timeout":          "30s",
	"relay.delivery.region":           "",
	"relay.delivery.domain":           "",
	"relay.delivery.username":         "",
	"relay.delivery.password":         "",
	"relay.delivery.tls_mode":         "",
	"relay.delivery.dkim_domain":      "",
	"relay.delivery.dkim_selector":    "",
	"relay.delivery.dkim_private_key": "",

	"smtp.enabled":             false,
	"smtp.host":                "0.0.0.0",
	"smtp.port":                2525,
	"smtp.domain":              "mpmail",
	"smtp.read_timeout":        "60s",
	"smtp.write_timeout":       "60s",
	"smtp.max_message_bytes":   1 << 20,
	"smtp.max_recipients":      50,
	"smtp.max_connections":     100,
	"smtp.username":            "",
	"smtp.password":            "",
	"smtp.allowed_domains":     []string{},
	"smtp.tls_cert_file":       "",
	"smtp.tls_key_file":        "",
	"smtp.allow_insecure_auth": false,

	"logging.level":       "info",
	"logging.output":      "stdout",
	"logging.file_path":   "",
	"logging.max_size_mb": 100,
	"logging.max_files":   5,
}

// Load reads config.yaml from configPath. The file is optional; every key
// has a default and can be overridden from the environment. A .env file in
// the working directory is loaded first when present; variables already set
// in the environment win over it.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// checkWriteTimeout requires write_timeout to exceed request_timeout. Zero
// on either side means unlimited.
func (a APIConfig) checkWriteTimeout(any) error {
	if a.WriteTimeout > 0 && a.RequestTimeout > 0 && a.WriteTimeout <= a.RequestTimeout {
		return fmt.Errorf("must be greater than request_timeout (%s)", a.RequestTimeout)
	}
	return nil
}

// Validate checks the settings shared by both binaries. Provider
// credentials are checked when the provider is built.
func (c *Config) Validate() error {
	return validation.Errors{
		"api": validation.ValidateStruct(&c.API,
			validation.Field(&c.API.Port, validation.Required, validation.Min(1), validation.Max(65535)),
			validation.Field(&c.API.WriteTimeout, validation.By(c.API.checkWriteTimeout)),
		),
		"delivery": validation.ValidateStruct(&c.Delivery.Sender,
			validation.Field(&c.Delivery.Sender.From, is.EmailFormat),
		),
		"drain": validation.ValidateStruct(&c.Drain.DrainConfig,
			validation.Field(&c.Drain.DefaultBatchSize, validation.Min(0)),
			validation.Field(&c.Drain.MaxBatchSize, validation.Min(0), validation.Max(queue.MaxBatchSize)),
		),
		"relay": validation.ValidateStruct(&c.Relay,
			validation.Field(&c.Relay.DrainURL, is.URL),
			validation.Field(&c.Relay.Concurrency, validation.Min(0)),
			validation.Field(&c.Relay.MaxRetries, validation.Min(0)),
		),
		"smtp": c.SMTP.Validate(),
	}.Filter()
}
