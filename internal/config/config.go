package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/tamoortahir09/atlas-store/pkg/config"
)

// Config holds all configuration for the store service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STORE_HTTP_PORT" envDefault:"8010"`

	// JWT auth
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev_secret_change_me"`

	// Redis (carts and checkout sessions)
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// PayNow storefront
	PayNowAPIURL  string `env:"PAYNOW_API_URL" envDefault:"https://api.paynow.gg"`
	PayNowStoreID string `env:"PAYNOW_STORE_ID"`

	// Atlas API (gem balance and purchase ledger)
	AtlasAPIURL string `env:"ATLAS_API_URL" envDefault:"http://localhost:8020"`

	// Catalog
	CatalogConfigPath     string `env:"CATALOG_CONFIG_PATH" envDefault:""`
	CatalogRefreshSeconds int    `env:"CATALOG_REFRESH_SECONDS" envDefault:"300"`

	// Cart
	CartTTLHours int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Profile caches
	ProfileCacheSeconds int `env:"PROFILE_CACHE_SECONDS" envDefault:"30"`

	// Checkout stepper timings
	StepSettleDelayMs        int    `env:"STEP_SETTLE_DELAY_MS" envDefault:"800"`
	StepSessionTimeoutSec    int    `env:"STEP_SESSION_TIMEOUT_SECONDS" envDefault:"300"`
	StepInactivityTimeoutSec int    `env:"STEP_INACTIVITY_TIMEOUT_SECONDS" envDefault:"120"`
	StepCloseDelayMs         int    `env:"STEP_CLOSE_DELAY_MS" envDefault:"1500"`
	StepVerifyAttempts       int    `env:"STEP_VERIFY_ATTEMPTS" envDefault:"5"`
	StepVerifyDelayMs        int    `env:"STEP_VERIFY_DELAY_MS" envDefault:"2000"`
	StepMaxRetries           int    `env:"STEP_MAX_RETRIES" envDefault:"3"`
	StepSessionMaxAgeHours   int    `env:"STEP_SESSION_MAX_AGE_HOURS" envDefault:"24"`
	CheckoutCurrency         string `env:"CHECKOUT_CURRENCY" envDefault:"USD"`

	// Checkout signal origin allow-list (cross-window messages)
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Circuit breaker settings for provider calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load store config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.StepVerifyAttempts < 1 {
		return fmt.Errorf("STEP_VERIFY_ATTEMPTS must be at least 1, got %d", c.StepVerifyAttempts)
	}
	if c.StepMaxRetries < 0 {
		return fmt.Errorf("STEP_MAX_RETRIES must not be negative, got %d", c.StepMaxRetries)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	for name, rawURL := range map[string]string{
		"PAYNOW_API_URL": c.PayNowAPIURL,
		"ATLAS_API_URL":  c.AtlasAPIURL,
	} {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	return nil
}

// CatalogRefresh returns the catalog freshness window.
func (c *Config) CatalogRefresh() time.Duration {
	return time.Duration(c.CatalogRefreshSeconds) * time.Second
}

// CartTTL returns how long an idle cart survives in Redis.
func (c *Config) CartTTL() time.Duration {
	return time.Duration(c.CartTTLHours) * time.Hour
}

// ProfileCacheTTL returns the freshness window of the gem balance and
// purchase-history caches.
func (c *Config) ProfileCacheTTL() time.Duration {
	return time.Duration(c.ProfileCacheSeconds) * time.Second
}
