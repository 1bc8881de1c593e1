package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfiguration is returned for configuration that prevents startup
var ErrConfiguration = errors.New("configuration error")

// EnvPrefix prefixes environment overrides, e.g. ESL_VUSION_SUBSCRIPTION_KEY
const EnvPrefix = "ESL"

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Vusion      VusionConfig
	Delivery    DeliveryConfig
	Dispatch    DispatchConfig
	Stores      []StoreMapping `validate:"dive"`
	Idempotency IdempotencyConfig
	Redis       RedisConfig
	Telemetry   TelemetryConfig
	Metrics     MetricsConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string `validate:"required"`
	Env  string `validate:"required"`
	// Address is the listen address; empty, "localhost" and "127.0.0.1" bind to loopback only
	Address string
	Port    int `validate:"min=1,max=65535"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn warning error"`
	Format string `validate:"oneof=json console"`
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds inbound HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int   `validate:"min=1"`
	MaxBodySize    int64 `validate:"min=1"`
	TrustedProxies []string
	// RateLimitRPS limits webhook requests per client IP; 0 disables it
	RateLimitRPS   float64 `validate:"min=0"`
	RateLimitBurst int     `validate:"min=0"`
}

// VusionConfig holds the label cloud API settings
type VusionConfig struct {
	BaseURL         string  `validate:"required,url"`
	SubscriptionKey string  `validate:"required"`
	TimeoutSeconds  int     `validate:"min=1"`
	RateLimitQPS    float64 `validate:"min=0"`
	RateLimitBurst  int     `validate:"min=0"`
}

// DeliveryConfig holds batching and retry limits for outbound calls
type DeliveryConfig struct {
	MaxItemsPerBatch  int           `validate:"min=1"`
	MaxBytesPerBatch  int           `validate:"min=1"`
	MaxAttempts       int           `validate:"min=1,max=10"`
	RetryDelay        time.Duration `validate:"min=0"`
	RetryMultiplier   float64       `validate:"min=1"`
	MaxRetryDelay     time.Duration `validate:"min=0"`
	StoreConcurrency  int           `validate:"min=1"`
	MaxErrorBodyBytes int64         `validate:"min=1"`
}

// DispatchConfig holds the sync worker pool settings
type DispatchConfig struct {
	Workers       int `validate:"min=1"`
	QueueSize     int `validate:"min=1"`
	ShutdownGrace time.Duration
}

// StoreMapping maps a source store number to a destination store id
type StoreMapping struct {
	Source string `mapstructure:"source" validate:"required"`
	Target string `mapstructure:"target"`
}

// IdempotencyConfig holds the webhook replay guard settings
type IdempotencyConfig struct {
	Enabled bool
	Backend string `validate:"oneof=memory redis"`
	TTL     time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// TelemetryConfig holds OpenTelemetry tracing configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64 `validate:"min=0,max=1"`
	ServiceName       string
	Insecure          bool
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	// Enabled serves Prometheus metrics on Path
	Enabled bool
	Path    string
	// OTLPEnabled also pushes metrics to the telemetry collector
	OTLPEnabled    bool
	ExportInterval time.Duration
}

// Load reads configuration.
// Priority (highest to lowest):
//  1. Environment variables with ESL_ prefix (a .env file in the working directory is loaded first)
//  2. The config file: path if given, else config.toml in ., /etc/vusion-esl-driver or /app
//  3. Built-in defaults
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: reading .env: %v", ErrConfiguration, err)
	}

	v := viper.New()
	setViperDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vusion-esl-driver")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: reading config file: %v", ErrConfiguration, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Address: strings.TrimSpace(v.GetString("app.address")),
			Port:    v.GetInt("app.port"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			RateLimitRPS:   v.GetFloat64("http.rate_limit_rps"),
			RateLimitBurst: v.GetInt("http.rate_limit_burst"),
		},
		Vusion: VusionConfig{
			BaseURL:         strings.TrimSpace(v.GetString("vusion.base_url")),
			SubscriptionKey: strings.TrimSpace(v.GetString("vusion.subscription_key")),
			TimeoutSeconds:  v.GetInt("vusion.timeout_seconds"),
			RateLimitQPS:    v.GetFloat64("vusion.rate_limit_qps"),
			RateLimitBurst:  v.GetInt("vusion.rate_limit_burst"),
		},
		Delivery: DeliveryConfig{
			MaxItemsPerBatch:  v.GetInt("delivery.max_items_per_batch"),
			MaxBytesPerBatch:  v.GetInt("delivery.max_bytes_per_batch"),
			MaxAttempts:       v.GetInt("delivery.max_attempts"),
			RetryDelay:        v.GetDuration("delivery.retry_delay"),
			RetryMultiplier:   v.GetFloat64("delivery.retry_multiplier"),
			MaxRetryDelay:     v.GetDuration("delivery.max_retry_delay"),
			StoreConcurrency:  v.GetInt("delivery.store_concurrency"),
			MaxErrorBodyBytes: v.GetInt64("delivery.max_error_body_bytes"),
		},
		Dispatch: DispatchConfig{
			Workers:       v.GetInt("dispatch.workers"),
			QueueSize:     v.GetInt("dispatch.queue_size"),
			ShutdownGrace: v.GetDuration("dispatch.shutdown_grace"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: v.GetBool("idempotency.enabled"),
			Backend: strings.ToLower(v.GetString("idempotency.backend")),
			TTL:     v.GetDuration("idempotency.ttl"),
		},
		Redis: RedisConfig{
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
		Metrics: MetricsConfig{
			Enabled:        v.GetBool("metrics.enabled"),
			Path:           v.GetString("metrics.path"),
			OTLPEnabled:    v.GetBool("metrics.otlp_enabled"),
			ExportInterval: v.GetDuration("metrics.export_interval"),
		},
	}

	if err := v.UnmarshalKey("stores", &cfg.Stores); err != nil {
		return nil, fmt.Errorf("%w: stores: %v", ErrConfiguration, err)
	}
	extra, err := parseStoreMap(v.GetString("store_map"))
	if err != nil {
		return nil, err
	}
	cfg.Stores = append(cfg.Stores, extra...)

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setViperDefaults holds defaults that a zero value cannot express
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("telemetry.sampling_ratio", 1.0)
}

// parseStoreMap reads "RS1=okimoto_corp_us.waianae_store,RS2=..." pairs
func parseStoreMap(raw string) ([]StoreMapping, error) {
	var out []StoreMapping
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		source, target, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(source) == "" {
			return nil, fmt.Errorf("%w: store_map entry %q must be SOURCE=TARGET", ErrConfiguration, pair)
		}
		out = append(out, StoreMapping{Source: strings.TrimSpace(source), Target: strings.TrimSpace(target)})
	}
	return out, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "vusion-esl-driver"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Address == "" {
		cfg.App.Address = "127.0.0.1"
	}
	if cfg.App.Port == 0 {
		cfg.App.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	// a webhook waits for every store to be delivered, retries included
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 5 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 64 << 20
	}
	if cfg.HTTP.RateLimitRPS > 0 && cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = int(cfg.HTTP.RateLimitRPS) + 1
	}
	if cfg.Vusion.BaseURL == "" {
		cfg.Vusion.BaseURL = "https://api-us.vusion.io/vlink-pro/v1"
	}
	cfg.Vusion.BaseURL = strings.TrimRight(cfg.Vusion.BaseURL, "/")
	if cfg.Vusion.TimeoutSeconds == 0 {
		cfg.Vusion.TimeoutSeconds = 60
	}
	if cfg.Delivery.MaxItemsPerBatch == 0 {
		cfg.Delivery.MaxItemsPerBatch = 999
	}
	if cfg.Delivery.MaxBytesPerBatch == 0 {
		cfg.Delivery.MaxBytesPerBatch = 10 << 20
	}
	if cfg.Delivery.MaxAttempts == 0 {
		cfg.Delivery.MaxAttempts = 3
	}
	if cfg.Delivery.RetryDelay == 0 {
		cfg.Delivery.RetryDelay = time.Second
	}
	if cfg.Delivery.RetryMultiplier == 0 {
		cfg.Delivery.RetryMultiplier = 2
	}
	if cfg.Delivery.MaxRetryDelay == 0 {
		cfg.Delivery.MaxRetryDelay = 30 * time.Second
	}
	if cfg.Delivery.StoreConcurrency == 0 {
		cfg.Delivery.StoreConcurrency = 4
	}
	if cfg.Delivery.MaxErrorBodyBytes == 0 {
		cfg.Delivery.MaxErrorBodyBytes = 64 << 10
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 10
	}
	if cfg.Dispatch.QueueSize == 0 {
		cfg.Dispatch.QueueSize = 100
	}
	if cfg.Dispatch.ShutdownGrace == 0 {
		cfg.Dispatch.ShutdownGrace = 5 * time.Second
	}
	if cfg.Idempotency.Backend == "" {
		cfg.Idempotency.Backend = "memory"
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 10 * time.Minute
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.ExportInterval == 0 {
		cfg.Metrics.ExportInterval = 60 * time.Second
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration. Every failure wraps ErrConfiguration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	seen := make(map[string]bool, len(c.Stores))
	for _, s := range c.Stores {
		if seen[s.Source] {
			return fmt.Errorf("%w: store %s is mapped more than once", ErrConfiguration, s.Source)
		}
		seen[s.Source] = true
	}

	if c.Idempotency.Enabled && c.Idempotency.TTL <= 0 {
		return fmt.Errorf("%w: idempotency.ttl must be positive", ErrConfiguration)
	}
	return nil
}

// StoreTable returns the store mappings as a source to target table
func (c *Config) StoreTable() map[string]string {
	table := make(map[string]string, len(c.Stores))
	for _, s := range c.Stores {
		table[s.Source] = s.Target
	}
	return table
}

// IsLocalhostOnly reports whether the server binds to the loopback interface only
func (c *AppConfig) IsLocalhostOnly() bool {
	switch strings.ToLower(c.Address) {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ListenAddr returns host:port for the HTTP server
func (c *AppConfig) ListenAddr() string {
	host := c.Address
	if c.IsLocalhostOnly() {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}
