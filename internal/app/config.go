package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (TEAMCART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (TEAMCART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `usage:"Redis connection URL for the live cart view store (TEAMCART_REDIS_URL or REDIS_URL)" flag:"redis-url"`

	PaymentWebhookSecret string `usage:"HMAC secret for payment provider webhooks" flag:"payment-webhook-secret"`

	Cart       CartConfig
	Sweeper    SweeperConfig
	Dispatcher DispatcherConfig
	ViewStore  ViewStoreConfig
	RateLimit  RateLimitConfig
	CORS       CORSConfig
	Graceful   GracefulConfig
}

// CartConfig controls cart lifecycle defaults.
type CartConfig struct {
	TTL time.Duration `default:"2h" usage:"How long a new cart stays joinable before expiration"`
}

// SweeperConfig controls the background expiration loop.
type SweeperConfig struct {
	Cadence     time.Duration `default:"1m"  usage:"How often the expiration sweep runs"`
	BatchSize   int           `default:"50"  usage:"Max carts fetched per sweep batch" flag:"sweep-batch-size"`
	GraceWindow time.Duration `default:"5m"  usage:"Grace period past a cart's deadline before it is swept" flag:"grace-window"`
}

// DispatcherConfig controls the outbox delivery loop.
type DispatcherConfig struct {
	Tick      time.Duration `default:"1s"  usage:"Outbox polling interval" flag:"dispatch-tick"`
	BatchSize int           `default:"100" usage:"Max events fetched per dispatch batch" flag:"dispatch-batch-size"`
}

// ViewStoreConfig controls the Redis view model cache.
type ViewStoreConfig struct {
	TTL time.Duration `default:"15m" usage:"Base TTL for cached cart view models" flag:"view-ttl"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "TEAMCART",
		Files:     []string{"config.yaml", "/etc/teamcart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations the server cannot run with. Webhook HMACs
// over an empty secret are forgeable, so the secret is as mandatory as the
// datastore URLs.
func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set TEAMCART_DATABASE_URL or DATABASE_URL")
	}
	if c.RedisURL == "" {
		return errors.New("redis URL is required: set TEAMCART_REDIS_URL or REDIS_URL")
	}
	if c.PaymentWebhookSecret == "" {
		return errors.New("payment webhook secret is required: set TEAMCART_PAYMENT_WEBHOOK_SECRET")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's TEAMCART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisURL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
