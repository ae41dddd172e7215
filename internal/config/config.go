// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every environment-driven setting of the marketplace service.
type Config struct {
	Port       string `envconfig:"PORT" default:"8080"`
	ModuleName string `envconfig:"MODULE_NAME" default:"Tech-Verse"`

	DatabaseURL       string        `envconfig:"DATABASE_URL"`
	DBHost            string        `envconfig:"DB_HOST"`
	DBPort            string        `envconfig:"DB_PORT" default:"5432"`
	DBUser            string        `envconfig:"DB_USER" default:"postgres"`
	DBPassword        string        `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName            string        `envconfig:"DB_NAME" default:"techverse"`
	DBSSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"60"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"20"`
	DBConnMaxIdle     time.Duration `envconfig:"DB_CONN_MAX_IDLE" default:"5m"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`

	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"45s"`

	RedisURL      string        `envconfig:"REDIS_URL"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"2h"`
	SessionCookie string        `envconfig:"SESSION_COOKIE" default:"techverse_session"`
	CookieSecure  bool          `envconfig:"COOKIE_SECURE" default:"false"`

	AdminRegistrationCode string `envconfig:"ADMIN_REGISTRATION_CODE"`

	MediaDir          string `envconfig:"MEDIA_DIR" default:"storage/media"`
	LowStockThreshold int    `envconfig:"LOW_STOCK_THRESHOLD" default:"5"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("SESSION_TTL must be positive, got %s", cfg.SessionTTL)
	}
	if cfg.LowStockThreshold < 1 {
		return Config{}, fmt.Errorf("LOW_STOCK_THRESHOLD must be at least 1, got %d", cfg.LowStockThreshold)
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return cfg, nil
}

// DSN returns the postgres connection string, or "" when neither DATABASE_URL
// nor DB_HOST is set, which selects memory mode.
func (c Config) DSN() string {
	if dsn := strings.TrimSpace(c.DatabaseURL); dsn != "" {
		return dsn
	}
	host := strings.TrimSpace(c.DBHost)
	if host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, host, c.DBPort, c.DBName, c.DBSSLMode)
}
