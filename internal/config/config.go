package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the service. It is loaded once at
// start-up and passed by value or pointer to constructors; nothing mutates it.
type Config struct {
	AppEnv    string `envconfig:"APP_ENV" default:"development"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	DBHost            string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort            string        `envconfig:"DB_PORT" default:"5432"`
	DBUser            string        `envconfig:"DB_USER" default:"postgres"`
	DBPassword        string        `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName            string        `envconfig:"DB_NAME" default:"postgres"`
	DBSSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`

	SecretKey                string   `envconfig:"SECRET_KEY" required:"true"`
	Algorithm                string   `envconfig:"ALGORITHM" default:"HS256"`
	AccessTokenExpireMinutes int      `envconfig:"ACCESS_TOKEN_EXPIRE_MINUTES" default:"30"`
	DisabledStatuses         []string `envconfig:"DISABLED_STATUSES" default:"Inactive,Suspended"`
	BcryptCost               int      `envconfig:"BCRYPT_COST" default:"10"`

	RedisAddr          string        `envconfig:"REDIS_ADDR"`
	PermissionCacheTTL time.Duration `envconfig:"PERMISSION_CACHE_TTL" default:"5m"`

	ReaperSchedule string `envconfig:"REAPER_SCHEDULE" default:"@every 10m"`

	LoginRatePerMinute int `envconfig:"LOGIN_RATE_PER_MINUTE" default:"20"`
	LoginRateBurst     int `envconfig:"LOGIN_RATE_BURST" default:"5"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`

	AdminUsername string `envconfig:"ADMIN_USERNAME"`
	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
}

const minProductionSecretLen = 32

var supportedAlgorithms = map[string]bool{"HS256": true, "HS384": true, "HS512": true}

// Load reads an optional .env file and then decodes the environment.
// A missing env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("SECRET_KEY must be provided")
	}
	if c.IsProduction() && len(c.SecretKey) < minProductionSecretLen {
		return fmt.Errorf("SECRET_KEY must be at least %d bytes in production", minProductionSecretLen)
	}
	c.Algorithm = strings.ToUpper(strings.TrimSpace(c.Algorithm))
	if !supportedAlgorithms[c.Algorithm] {
		return fmt.Errorf("unsupported ALGORITHM %q", c.Algorithm)
	}
	if c.AccessTokenExpireMinutes <= 0 {
		return errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST %d out of range", c.BcryptCost)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// TokenTTL is the lifetime of an issued access token.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
