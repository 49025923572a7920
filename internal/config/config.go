package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nulzo/content-orchestrator/internal/cost"
	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/platform/otel"
	"github.com/nulzo/content-orchestrator/internal/resilience"
	"github.com/nulzo/content-orchestrator/internal/routing"
)

type Config struct {
	Server    ServerConfig           `mapstructure:"server"`
	Log       LogConfig              `mapstructure:"log"`
	Storage   StorageConfig          `mapstructure:"storage"`
	Redis     RedisConfig            `mapstructure:"redis"`
	RateLimit RateLimitConfig        `mapstructure:"rate_limit"`
	Costs     cost.Limits            `mapstructure:"costs"`
	Retry     resilience.RetryConfig `mapstructure:"retry"`
	Breakers  BreakersConfig         `mapstructure:"breakers"`
	Routing   RoutingConfig          `mapstructure:"routing"`
	Providers []llm.Descriptor       `mapstructure:"providers" validate:"dive"`
	Publish   PublishConfig          `mapstructure:"publish"`
	Notify    NotifyConfig           `mapstructure:"notify"`
	Batch     BatchConfig            `mapstructure:"batch"`
	Tracing   otel.Config            `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	Env             string        `mapstructure:"env" validate:"oneof=development test production"`
	APIKey          string        `mapstructure:"api_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type StorageConfig struct {
	// Driver is sqlite or memory.
	Driver string `mapstructure:"driver" validate:"oneof=sqlite memory"`
	DSN    string `mapstructure:"dsn" validate:"required_if=Driver sqlite"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url" validate:"required_if=Enabled true"`
	Prefix  string `mapstructure:"prefix"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=0"`
}

type BreakersConfig struct {
	Default resilience.BreakerConfig            `mapstructure:"default"`
	Presets map[string]resilience.BreakerConfig `mapstructure:"presets" validate:"dive"`
}

type RoutingConfig struct {
	// StoreURL is the config store base URL; empty means static table only.
	StoreURL     string        `mapstructure:"store_url" validate:"omitempty,url"`
	StoreToken   string        `mapstructure:"store_token"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// TablePath replaces the compiled-in fallback table.
	TablePath string `mapstructure:"table_path"`
}

func (c RoutingConfig) Router() routing.Config {
	return routing.Config{CacheTTL: c.CacheTTL, FetchTimeout: c.FetchTimeout}
}

type PublishConfig struct {
	URL     string        `mapstructure:"url" validate:"omitempty,url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
}

type BatchConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// envBindings maps keys to the variable names operators already use.
var envBindings = map[string]string{
	"costs.daily_limit":       "COST_DAILY_LIMIT",
	"costs.monthly_limit":     "COST_MONTHLY_LIMIT",
	"costs.per_request_limit": "COST_PER_REQUEST_LIMIT",
	"costs.warning_threshold": "COST_WARNING_THRESHOLD",
	"log.level":               "LOG_LEVEL",
	"log.format":              "LOG_FORMAT",
	"storage.dsn":             "DATABASE_PATH",
	"redis.url":               "REDIS_URL",
	"routing.store_url":       "PAYLOAD_URL",
	"routing.store_token":     "PAYLOAD_API_KEY",
	"publish.url":             "PAYLOAD_URL",
	"publish.token":           "PAYLOAD_API_KEY",
	"notify.telegram_token":   "TELEGRAM_BOT_TOKEN",
	"notify.telegram_chat_id": "TELEGRAM_CHAT_ID",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "file:orchestrator.db?_busy_timeout=5000&_journal_mode=WAL")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.prefix", "orchestrator:")

	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	limits := cost.DefaultLimits()
	v.SetDefault("costs.daily_limit", limits.Daily)
	v.SetDefault("costs.monthly_limit", limits.Monthly)
	v.SetDefault("costs.per_request_limit", limits.PerRequest)
	v.SetDefault("costs.warning_threshold", limits.WarningThreshold)

	retry := resilience.DefaultRetryConfig()
	v.SetDefault("retry.max_retries", retry.MaxRetries)
	v.SetDefault("retry.initial_delay", retry.InitialDelay)
	v.SetDefault("retry.max_delay", retry.MaxDelay)
	v.SetDefault("retry.multiplier", retry.Multiplier)
	v.SetDefault("retry.retryable_patterns", retry.RetryablePatterns)

	breaker := resilience.DefaultBreakerConfig()
	v.SetDefault("breakers.default.failure_threshold", breaker.FailureThreshold)
	v.SetDefault("breakers.default.reset_timeout", breaker.ResetTimeout)
	v.SetDefault("breakers.default.half_open_max_calls", breaker.HalfOpenMaxCalls)
	v.SetDefault("breakers.presets", map[string]any{})

	v.SetDefault("routing.store_url", "")
	v.SetDefault("routing.store_token", "")
	v.SetDefault("routing.cache_ttl", routing.DefaultCacheTTL)
	v.SetDefault("routing.fetch_timeout", routing.DefaultFetchTimeout)
	v.SetDefault("routing.table_path", "")

	v.SetDefault("publish.url", "")
	v.SetDefault("publish.token", "")
	v.SetDefault("publish.timeout", 30*time.Second)

	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", "")

	v.SetDefault("batch.interval", 2*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "content-orchestrator")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.pretty", false)
}

// LoadConfig reads config.yaml (from ., ./config or $CONFIG_FILE), then
// environment variables, then validates the result.
func LoadConfig() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Resolve API Keys
	for i, p := range cfg.Providers {
		cfg.Providers[i] = llm.ResolveCredentials(p, func(name string) string {
			// process environment first, then anything viper knows
			if val := os.Getenv(name); val != "" {
				return val
			}
			return v.GetString(name)
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
