package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (MARKET_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (MARKET_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Database    DatabaseConfig
	JWT         JWTConfig
	Payments    PaymentsConfig
	Orders      OrdersConfig
	Notify      NotifyConfig
	Password    PasswordConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// DatabaseConfig tunes the connection pool.
type DatabaseConfig struct {
	MaxConns int32 `default:"5" usage:"Maximum pool connections"`
}

// JWTConfig controls bearer token issuing.
type JWTConfig struct {
	Secret string        `usage:"HMAC secret for signing tokens (MARKET_JWT_SECRET)"`
	TTL    time.Duration `default:"24h" usage:"Token lifetime"`
	Issuer string        `default:"cameroon-mark" usage:"Token issuer claim"`
}

// PaymentsConfig holds payment provider settings.
type PaymentsConfig struct {
	WebhookSecret string `usage:"Shared secret verifying payment callbacks" flag:"payments-webhook-secret"`
}

// OrdersConfig controls the stale order sweeper.
type OrdersConfig struct {
	PendingTTL    time.Duration `default:"30m" usage:"Cancel unpaid pending orders older than this" flag:"orders-pending-ttl"`
	SweepSchedule string        `default:"@every 5m" usage:"Cron schedule of the stale order sweep"`
	SweepBatch    int           `default:"100" usage:"Orders canceled per sweep at most"`
}

// NotifyConfig controls outbound event delivery. Events are only logged
// when WebhookURL is empty.
type NotifyConfig struct {
	WebhookURL string        `usage:"Endpoint receiving order and discount events"`
	Secret     string        `usage:"HMAC secret signing outbound events"`
	Workers    int           `default:"4" usage:"Concurrent deliveries"`
	QueueSize  int           `default:"256" usage:"Pending events kept before dropping"`
	Timeout    time.Duration `default:"5s" usage:"Per-delivery timeout"`
}

// PasswordConfig controls password hashing.
type PasswordConfig struct {
	BcryptCost int `default:"12" usage:"bcrypt cost factor"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"http://localhost:3000" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "MARKET",
		Files:     []string{"config.yaml", "/etc/market/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set MARKET_DATABASE_URL or DATABASE_URL")
	case len(c.JWT.Secret) < 32:
		return errors.New("JWT secret must be at least 32 bytes: set MARKET_JWT_SECRET")
	case c.Orders.PendingTTL <= 0:
		return errors.New("orders pending TTL must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's MARKET_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
