package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CAKEKART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (CAKEKART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (CAKEKART_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Pricing      PricingConfig
	Gateway      GatewayConfig
	Coupons      CouponConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PricingConfig holds the delivery fee knobs.
type PricingConfig struct {
	FreeDeliveryThreshold int    `default:"499" usage:"Subtotal at or above which delivery is free" flag:"free-delivery-threshold"`
	DeliveryFee           int    `default:"49" usage:"Flat delivery fee below the threshold" flag:"delivery-fee"`
	Currency              string `default:"INR" usage:"Currency code used for gateway orders"`
}

// GatewayConfig configures the hosted payment gateway client.
type GatewayConfig struct {
	BaseURL   string        `usage:"Payment gateway base URL" flag:"gateway-base-url"`
	KeyID     string        `usage:"Gateway key ID (publishable)" flag:"gateway-key-id"`
	KeySecret string        `usage:"Gateway key secret (CAKEKART_GATEWAY_KEY_SECRET)" flag:"gateway-key-secret"`
	Demo      bool          `default:"false" usage:"Use the synthesized demo gateway instead of a real one" flag:"gateway-demo"`
	Timeout   time.Duration `default:"10s" usage:"Gateway HTTP timeout" flag:"gateway-timeout"`
}

// CouponConfig controls coupon redemption accounting.
type CouponConfig struct {
	UsagePolicy  string        `default:"global" usage:"Coupon usage limit scope: global or per_user" flag:"coupon-usage-policy"`
	BloomRefresh time.Duration `default:"30s" usage:"Interval for rebuilding the coupon code bloom filter" flag:"coupon-bloom-refresh"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CAKEKART",
		Files:     []string{"config.yaml", "/etc/cakekart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CAKEKART_DATABASE_URL or DATABASE_URL")
	}
	if !cfg.Gateway.Demo && (cfg.Gateway.BaseURL == "" || cfg.Gateway.KeyID == "" || cfg.Gateway.KeySecret == "") {
		return nil, errors.New("gateway credentials are required unless CAKEKART_GATEWAY_DEMO=true")
	}
	if p := cfg.Coupons.UsagePolicy; p != "global" && p != "per_user" {
		return nil, errors.Errorf("unknown coupon usage policy %q", p)
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CAKEKART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
