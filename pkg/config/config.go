package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/andobill/pkg/httputil"
	"github.com/platinummonkey/andobill/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Session       SessionConfig       `yaml:"session"`
	Throttle      ThrottleConfig      `yaml:"throttle"`
	Cache         CacheConfig         `yaml:"cache"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LoginPath       string        `yaml:"login_path"`
	// RateLimit caps API requests per user (or address) per minute; 0 disables
	RateLimit int `yaml:"rate_limit"`
	// TrustedProxies lists the CIDRs whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the peer address is always used.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

// RedisConfig holds Redis configuration. An empty URL selects the in-process
// limiter and session store.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

// SessionConfig holds session cookie and freshness settings
type SessionConfig struct {
	CookieName   string        `yaml:"cookie_name"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Lifetime     time.Duration `yaml:"lifetime"`
	SecureCookie bool          `yaml:"secure_cookie"`
	MemoryLimit  int           `yaml:"memory_limit"`
}

// ThrottleConfig holds login throttle thresholds
type ThrottleConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	Decay            time.Duration `yaml:"decay"`
	Window           time.Duration `yaml:"window"`
	AddressThreshold int           `yaml:"address_threshold"`
	AddressLockout   time.Duration `yaml:"address_lockout"`
}

// CacheConfig holds the aggregate cache settings
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// MaintenanceConfig holds scheduled job settings
type MaintenanceConfig struct {
	Enabled          bool          `yaml:"enabled"`
	PruneSchedule    string        `yaml:"prune_schedule"`
	SweepSchedule    string        `yaml:"sweep_schedule"`
	AttemptRetention time.Duration `yaml:"attempt_retention"`
	AuditRetention   time.Duration `yaml:"audit_retention"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel           string `yaml:"log_level"`
	MetricsEnabled     bool   `yaml:"metrics_enabled"`
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			LoginPath:       "/login",
			RateLimit:       600,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
		},
		Session: SessionConfig{
			CookieName:   "andobill_session",
			IdleTimeout:  120 * time.Minute,
			Lifetime:     14 * 24 * time.Hour,
			SecureCookie: true,
			MemoryLimit:  10000,
		},
		Throttle: ThrottleConfig{
			MaxAttempts:      5,
			Decay:            time.Minute,
			Window:           15 * time.Minute,
			AddressThreshold: 20,
			AddressLockout:   60 * time.Minute,
		},
		Cache: CacheConfig{
			Size: 1024,
			TTL:  5 * time.Minute,
		},
		Maintenance: MaintenanceConfig{
			Enabled:          true,
			PruneSchedule:    "@daily",
			SweepSchedule:    "@every 5m",
			AttemptRetention: 30 * 24 * time.Hour,
			AuditRetention:   365 * 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "andobill",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by ANDOBILL_CONFIG_FILE (if any), then ANDOBILL_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("ANDOBILL_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("ANDOBILL_HOST", s.Host)
	s.Port = getEnv("ANDOBILL_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("ANDOBILL_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("ANDOBILL_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("ANDOBILL_HTTP_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("ANDOBILL_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.LoginPath = getEnv("ANDOBILL_LOGIN_PATH", s.LoginPath)
	s.RateLimit = getEnvInt("ANDOBILL_RATE_LIMIT", s.RateLimit)
	s.TrustedProxies = getEnvList("ANDOBILL_TRUSTED_PROXIES", s.TrustedProxies)

	d := &c.Database
	d.URL = getEnv("ANDOBILL_DATABASE_URL", d.URL)
	d.MaxOpenConns = getEnvInt("ANDOBILL_DATABASE_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvInt("ANDOBILL_DATABASE_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetime = getEnvDuration("ANDOBILL_DATABASE_CONN_MAX_LIFETIME", d.ConnMaxLifetime)
	d.MigrateOnStart = getEnvBool("ANDOBILL_DATABASE_MIGRATE", d.MigrateOnStart)

	r := &c.Redis
	r.URL = getEnv("ANDOBILL_REDIS_URL", r.URL)
	r.Password = getEnv("ANDOBILL_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("ANDOBILL_REDIS_DB", r.DB)
	r.PoolSize = getEnvInt("ANDOBILL_REDIS_POOL_SIZE", r.PoolSize)
	r.MaxRetries = getEnvInt("ANDOBILL_REDIS_MAX_RETRIES", r.MaxRetries)

	ss := &c.Session
	ss.CookieName = getEnv("ANDOBILL_SESSION_COOKIE", ss.CookieName)
	ss.IdleTimeout = getEnvDuration("ANDOBILL_SESSION_IDLE_TIMEOUT", ss.IdleTimeout)
	ss.Lifetime = getEnvDuration("ANDOBILL_SESSION_LIFETIME", ss.Lifetime)
	ss.SecureCookie = getEnvBool("ANDOBILL_SESSION_SECURE_COOKIE", ss.SecureCookie)
	ss.MemoryLimit = getEnvInt("ANDOBILL_SESSION_MEMORY_LIMIT", ss.MemoryLimit)

	t := &c.Throttle
	t.MaxAttempts = getEnvInt("ANDOBILL_THROTTLE_MAX_ATTEMPTS", t.MaxAttempts)
	t.Decay = getEnvDuration("ANDOBILL_THROTTLE_DECAY", t.Decay)
	t.Window = getEnvDuration("ANDOBILL_THROTTLE_WINDOW", t.Window)
	t.AddressThreshold = getEnvInt("ANDOBILL_THROTTLE_ADDRESS_THRESHOLD", t.AddressThreshold)
	t.AddressLockout = getEnvDuration("ANDOBILL_THROTTLE_ADDRESS_LOCKOUT", t.AddressLockout)

	c.Cache.Size = getEnvInt("ANDOBILL_CACHE_SIZE", c.Cache.Size)
	c.Cache.TTL = getEnvDuration("ANDOBILL_CACHE_TTL", c.Cache.TTL)

	m := &c.Maintenance
	m.Enabled = getEnvBool("ANDOBILL_MAINTENANCE_ENABLED", m.Enabled)
	m.PruneSchedule = getEnv("ANDOBILL_MAINTENANCE_PRUNE_SCHEDULE", m.PruneSchedule)
	m.SweepSchedule = getEnv("ANDOBILL_MAINTENANCE_SWEEP_SCHEDULE", m.SweepSchedule)
	m.AttemptRetention = getEnvDuration("ANDOBILL_ATTEMPT_RETENTION", m.AttemptRetention)
	m.AuditRetention = getEnvDuration("ANDOBILL_AUDIT_RETENTION", m.AuditRetention)

	o := &c.Observability
	o.LogLevel = getEnv("ANDOBILL_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("ANDOBILL_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("ANDOBILL_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("ANDOBILL_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("ANDOBILL_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("ANDOBILL_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("ANDOBILL_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if _, err := httputil.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return err
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive")
	}
	if c.Session.Lifetime < c.Session.IdleTimeout {
		return fmt.Errorf("session lifetime must not be shorter than the idle timeout")
	}
	if c.Throttle.MaxAttempts <= 0 || c.Throttle.AddressThreshold <= 0 {
		return fmt.Errorf("throttle thresholds must be positive")
	}
	if c.Throttle.Window <= 0 || c.Throttle.Decay <= 0 || c.Throttle.AddressLockout <= 0 {
		return fmt.Errorf("throttle durations must be positive")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
