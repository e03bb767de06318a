package domain

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete FraudGuard console configuration.
type Config struct {
	// Server settings for the local web console
	Server ServerConfig `json:"server"`

	// API is the remote fraud-scoring service
	API APIConfig `json:"api"`

	// Tier determines which backends are used
	Tier Tier `json:"tier"`

	// Profile namespaces stored credentials, cache entries and bus topics
	Profile string `json:"profile"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds

	// CSRFKey is the 32-byte authentication key for form tokens.
	// Generated per process when empty.
	CSRFKey string `json:"-"`

	// SecureCookies marks CSRF cookies Secure (HTTPS deployments)
	SecureCookies bool `json:"secureCookies"`
}

// APIConfig describes the remote HTTP API.
type APIConfig struct {
	BaseURL string        `json:"baseUrl"`
	Timeout time.Duration `json:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-memory cache
	TierCommunity Tier = "community"

	// TierPro uses PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultProfile is used when no profile is configured.
const DefaultProfile = "default"

// DefaultConfig returns a single-operator configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         3000,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		API: APIConfig{
			BaseURL: "http://localhost:8000/api/v1",
			Timeout: 10 * time.Second,
		},
		Tier:    TierCommunity,
		Profile: DefaultProfile,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fraudguard.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 256,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudguard",
		},
	}
}

// ProConfig returns a configuration for shared deployments.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "fraudguard",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   64,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadFromEnv builds a Config from FRAUDGUARD_* variables.
// FRAUDGUARD_TIER=pro selects ProConfig as the base.
func LoadFromEnv() (*Config, error) {
	return loadFrom(os.Getenv)
}

func loadFrom(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	if strings.EqualFold(getenv("FRAUDGUARD_TIER"), string(TierPro)) {
		cfg = ProConfig()
	}

	var errs []string
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	str("FRAUDGUARD_API_URL", &cfg.API.BaseURL)
	dur("FRAUDGUARD_API_TIMEOUT", &cfg.API.Timeout)
	str("FRAUDGUARD_HOST", &cfg.Server.Host)
	num("FRAUDGUARD_PORT", &cfg.Server.Port)
	str("FRAUDGUARD_CSRF_KEY", &cfg.Server.CSRFKey)
	str("FRAUDGUARD_PROFILE", &cfg.Profile)

	str("FRAUDGUARD_STORE_DRIVER", &cfg.Repository.Driver)
	str("FRAUDGUARD_SQLITE_PATH", &cfg.Repository.SQLitePath)
	str("FRAUDGUARD_POSTGRES_HOST", &cfg.Repository.PostgresHost)
	num("FRAUDGUARD_POSTGRES_PORT", &cfg.Repository.PostgresPort)
	str("FRAUDGUARD_POSTGRES_USER", &cfg.Repository.PostgresUser)
	str("FRAUDGUARD_POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	str("FRAUDGUARD_POSTGRES_DB", &cfg.Repository.PostgresDB)
	str("FRAUDGUARD_POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	str("FRAUDGUARD_CACHE", &cfg.Cache.Type)
	str("FRAUDGUARD_REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("FRAUDGUARD_REDIS_PASSWORD", &cfg.Cache.RedisPassword)

	str("FRAUDGUARD_EVENTBUS", &cfg.EventBus.Type)
	str("FRAUDGUARD_NATS_URL", &cfg.EventBus.NATSUrl)
	str("FRAUDGUARD_NATS_TOKEN", &cfg.EventBus.NATSToken)

	if getenv("FRAUDGUARD_SECURE_COOKIES") == "true" {
		cfg.Server.SecureCookies = true
	}
	if getenv("FRAUDGUARD_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields every component depends on.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api base url is required", ErrInvalidInput)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api timeout must be positive", ErrInvalidInput)
	}
	if c.Profile == "" {
		return fmt.Errorf("%w: profile is required", ErrInvalidInput)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidInput, c.Server.Port)
	}
	return nil
}
