package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/coupon-selector/pkg/health"
)

// Storage kinds accepted by Config.Storage.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete service configuration, loadable from environment
// variables (COUPON_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"memory" usage:"Coupon catalog backend: memory or postgres"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (COUPON_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SeedDefaults bool   `default:"true" usage:"Load the built-in coupons into the catalog at startup" flag:"seed-defaults"`
	CORS         CORSConfig
	Health       HealthConfig
	Graceful     GracefulConfig
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
	MaxAge           int      `default:"86400" usage:"Preflight cache lifetime in seconds" flag:"cors-max-age"`
}

// HealthConfig controls how dependency checks are polled. The thresholds
// apply to the catalog readiness check, so a single slow query does not take
// the instance out of rotation.
type HealthConfig struct {
	Interval         time.Duration `default:"10s" usage:"Health check polling interval" flag:"health-interval"`
	FailureThreshold int           `default:"3" usage:"Consecutive catalog check failures before not ready" flag:"health-failure-threshold"`
	SuccessThreshold int           `default:"2" usage:"Consecutive catalog check successes before ready again" flag:"health-success-threshold"`
}

func (c HealthConfig) checkOptions() []health.Option {
	return []health.Option{
		health.WithFailureThreshold(c.FailureThreshold),
		health.WithSuccessThreshold(c.SuccessThreshold),
	}
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from command-line flags, environment
// variables and YAML config files, then applies platform defaults and
// validates the result.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "COUPON",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/coupon/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required for postgres storage: set COUPON_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage %q: want %s or %s", c.Storage, StorageMemory, StoragePostgres)
	}
	if c.Health.Interval <= 0 {
		return errors.New("health check interval must be positive")
	}
	if c.Graceful.ShutdownTimeout <= 0 {
		return errors.New("graceful shutdown timeout must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT onto the
// COUPON_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
