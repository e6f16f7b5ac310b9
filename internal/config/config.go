package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	devJWTSecret   = "dev-secret"
	maxAccessTTL   = 24 * time.Hour
	minBcryptCost  = 4
	maxBcryptCost  = 31
	productionName = "production"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Store        StoreConfig
	RateLimit    RateLimitConfig
	Jobs         JobsConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name           string        `env:"APP_NAME" envDefault:"identity-service"`
	Env            string        `env:"APP_ENV" envDefault:"development"`
	Host           string        `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port           string        `env:"APP_PORT" envDefault:"8080"`
	Version        string        `env:"APP_VERSION" envDefault:"dev"`
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	CORSOrigins    string        `env:"HTTP_CORS_ORIGINS" envDefault:"*"`
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-process store.
type PostgresConfig struct {
	DSN             string        `env:"POSTGRES_DSN"`
	MaxConns        int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations   bool          `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	ConnMaxIdleTime time.Duration `env:"POSTGRES_CONN_MAX_IDLE" envDefault:"30s"`
	ConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFE" envDefault:"5m"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr        string        `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix   string        `env:"REDIS_KEY_PREFIX" envDefault:"ids"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"3s"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	// Format is "json" or "console".
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// AuthConfig defines authentication parameters. The values are read once at
// startup and never mutated.
type AuthConfig struct {
	JWTSecret           string        `env:"AUTH_JWT_SECRET" envDefault:"dev-secret"`
	JWTIssuer           string        `env:"AUTH_JWT_ISSUER" envDefault:"identity-service"`
	AccessTokenTTL      time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" envDefault:"24h"`
	RecoveryHandoffTTL  time.Duration `env:"AUTH_RECOVERY_HANDOFF_TTL" envDefault:"15m"`
	PasswordResetTTL    time.Duration `env:"AUTH_PASSWORD_RESET_TTL" envDefault:"1h"`
	AccountRecoveryTTL  time.Duration `env:"AUTH_ACCOUNT_RECOVERY_TTL" envDefault:"24h"`
	BcryptCost          int           `env:"AUTH_BCRYPT_COST" envDefault:"10"`
	AdminSecret         string        `env:"ADMIN_SECRET"`
	TOTPIssuer          string        `env:"AUTH_TOTP_ISSUER" envDefault:"CodeWeaver"`
	TOTPSkew            uint          `env:"AUTH_TOTP_SKEW" envDefault:"1"`
	BackupCodeCount     int           `env:"AUTH_BACKUP_CODE_COUNT" envDefault:"8"`
	MinRecoveryQuestion int           `env:"AUTH_MIN_RECOVERY_QUESTIONS" envDefault:"2"`
}

// StoreConfig bounds every call to the durable stores.
type StoreConfig struct {
	Timeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
}

// RateLimitConfig holds fixed-window limits per route bucket.
type RateLimitConfig struct {
	Enabled         bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	AuthMax         int           `env:"RATE_LIMIT_AUTH_MAX" envDefault:"5"`
	AuthWindow      time.Duration `env:"RATE_LIMIT_AUTH_WINDOW" envDefault:"1h"`
	TwoFactorMax    int           `env:"RATE_LIMIT_2FA_MAX" envDefault:"3"`
	TwoFactorWindow time.Duration `env:"RATE_LIMIT_2FA_WINDOW" envDefault:"15m"`
	APIMax          int           `env:"RATE_LIMIT_API_MAX" envDefault:"100"`
	APIWindow       time.Duration `env:"RATE_LIMIT_API_WINDOW" envDefault:"15m"`
}

// JobsConfig schedules background maintenance.
type JobsConfig struct {
	PurgeSchedule string `env:"JOBS_PURGE_SCHEDULE" envDefault:"0 */15 * * * *"`
}

// NotificationConfig configures the outbound notification port.
type NotificationConfig struct {
	EmailFrom  string `env:"NOTIFY_EMAIL_FROM" envDefault:"noreply@example.com"`
	QueueSize  int    `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`
	Workers    int    `env:"NOTIFY_WORKERS" envDefault:"2"`
	AppBaseURL string `env:"NOTIFY_APP_BASE_URL" envDefault:"http://localhost:3000"`
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run safely with.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must not be empty"))
	}
	if c.App.Env == productionName && c.Auth.JWTSecret == devJWTSecret {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be set in production"))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.AccessTokenTTL > maxAccessTTL {
		errs = append(errs, fmt.Errorf("AUTH_ACCESS_TOKEN_TTL must be within (0, %s]", maxAccessTTL))
	}
	if c.Auth.RecoveryHandoffTTL <= 0 {
		errs = append(errs, errors.New("AUTH_RECOVERY_HANDOFF_TTL must be positive"))
	}
	if c.Auth.PasswordResetTTL <= 0 || c.Auth.AccountRecoveryTTL <= 0 {
		errs = append(errs, errors.New("recovery TTLs must be positive"))
	}
	if c.Auth.BcryptCost < minBcryptCost || c.Auth.BcryptCost > maxBcryptCost {
		errs = append(errs, fmt.Errorf("AUTH_BCRYPT_COST must be within [%d, %d]", minBcryptCost, maxBcryptCost))
	}
	if c.Auth.BackupCodeCount <= 0 {
		errs = append(errs, errors.New("AUTH_BACKUP_CODE_COUNT must be positive"))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not json or console", c.Logger.Format))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether the service runs in production mode.
func (a AppConfig) IsProduction() bool {
	return a.Env == productionName
}
