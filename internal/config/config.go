package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Log       LogConfig       `mapstructure:"log"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Signature ProviderConfig  `mapstructure:"signature" validate:"required"`
	Payment   ProviderConfig  `mapstructure:"payment" validate:"required"`
	Email     EmailConfig     `mapstructure:"email"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Env     string `mapstructure:"env"`
	BaseURL string `mapstructure:"base_url"` // used to build notification deep links
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Host       string `mapstructure:"host" validate:"required"`
	Port       int    `mapstructure:"port" validate:"required"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname" validate:"required"`
	SSLMode    string `mapstructure:"sslmode"`
	TestDBName string `mapstructure:"test_dbname"` // Separate database for testing
}

// AuthConfig holds the authentication configuration
type AuthConfig struct {
	Provider          string `mapstructure:"provider" validate:"oneof=local supabase"`
	JWTSecret         string `mapstructure:"jwt_secret" validate:"required"`
	SupabaseURL       string `mapstructure:"supabase_url" validate:"required_if=Provider supabase"`
	SupabaseAPIKey    string `mapstructure:"supabase_api_key" validate:"required_if=Provider supabase"`
	TokenDurationHour int    `mapstructure:"token_duration_hours"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// WebhookConfig holds the secrets used to authenticate provider callbacks
type WebhookConfig struct {
	SignatureSecret string        `mapstructure:"signature_secret"`
	PaymentSecret   string        `mapstructure:"payment_secret"`
	DedupeTTL       time.Duration `mapstructure:"dedupe_ttl"`
	DedupeBackend   string        `mapstructure:"dedupe_backend" validate:"omitempty,oneof=memory redis"`
}

// ProviderConfig holds the connection settings of an outbound provider proxy
type ProviderConfig struct {
	BaseURL  string        `mapstructure:"base_url" validate:"required,url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
}

// EmailConfig holds the email delivery configuration
type EmailConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	APIKey      string `mapstructure:"api_key" validate:"required_if=Enabled true"`
	FromAddress string `mapstructure:"from_address"`
}

// ReconcileConfig holds the settings of the stuck-operation sweep
type ReconcileConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
	ReviewAfter time.Duration `mapstructure:"review_after"`
	BatchSize   int           `mapstructure:"batch_size"`
	Concurrency int           `mapstructure:"concurrency"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SentryConfig holds error reporting settings
type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// TokenDuration returns the lifetime of issued session tokens
func (c *AuthConfig) TokenDuration() time.Duration {
	if c.TokenDurationHour <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TokenDurationHour) * time.Hour
}

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"server.port":               "SERVER_PORT",
	"server.env":                "APP_ENV",
	"server.base_url":           "APP_BASE_URL",
	"database.host":             "DB_HOST",
	"database.port":             "DB_PORT",
	"database.username":         "DB_USERNAME",
	"database.password":         "DB_PASSWORD",
	"database.dbname":           "DB_NAME",
	"database.sslmode":          "DB_SSLMODE",
	"database.test_dbname":      "TEST_DB_NAME",
	"auth.provider":             "AUTH_PROVIDER",
	"auth.jwt_secret":           "JWT_SECRET",
	"auth.supabase_url":         "SUPABASE_URL",
	"auth.supabase_api_key":     "SUPABASE_API_KEY",
	"auth.token_duration_hours": "TOKEN_DURATION_HOURS",
	"log.level":                 "LOG_LEVEL",
	"log.format":                "LOG_FORMAT",
	"log.output":                "LOG_OUTPUT",
	"webhook.signature_secret":  "SIGNATURE_WEBHOOK_SECRET",
	"webhook.payment_secret":    "PAYMENT_WEBHOOK_SECRET",
	"webhook.dedupe_ttl":        "WEBHOOK_DEDUPE_TTL",
	"webhook.dedupe_backend":    "WEBHOOK_DEDUPE_BACKEND",
	"signature.base_url":        "SIGNATURE_API_URL",
	"signature.api_key":         "SIGNATURE_API_KEY",
	"signature.timeout":         "SIGNATURE_API_TIMEOUT",
	"signature.retry_max":       "SIGNATURE_API_RETRY_MAX",
	"payment.base_url":          "PAYMENT_API_URL",
	"payment.api_key":           "PAYMENT_API_KEY",
	"payment.timeout":           "PAYMENT_API_TIMEOUT",
	"payment.retry_max":         "PAYMENT_API_RETRY_MAX",
	"email.enabled":             "EMAIL_ENABLED",
	"email.api_key":             "RESEND_API_KEY",
	"email.from_address":        "EMAIL_FROM_ADDRESS",
	"reconcile.enabled":         "RECONCILE_ENABLED",
	"reconcile.interval":        "RECONCILE_INTERVAL",
	"reconcile.stale_after":     "RECONCILE_STALE_AFTER",
	"reconcile.review_after":    "RECONCILE_REVIEW_AFTER",
	"reconcile.batch_size":      "RECONCILE_BATCH_SIZE",
	"reconcile.concurrency":     "RECONCILE_CONCURRENCY",
	"redis.addr":                "REDIS_ADDR",
	"redis.password":            "REDIS_PASSWORD",
	"redis.db":                  "REDIS_DB",
	"sentry.dsn":                "SENTRY_DSN",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.base_url", "http://localhost:3000")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "leasehub")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.test_dbname", "leasehub_test")
	v.SetDefault("auth.provider", "local")
	v.SetDefault("auth.jwt_secret", "your-secret-key-here")
	v.SetDefault("auth.token_duration_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("webhook.dedupe_ttl", 72*time.Hour)
	v.SetDefault("webhook.dedupe_backend", "memory")
	v.SetDefault("signature.base_url", "http://localhost:54321/functions/v1/cryptoneo")
	v.SetDefault("signature.timeout", 30*time.Second)
	v.SetDefault("signature.retry_max", 2)
	v.SetDefault("payment.base_url", "http://localhost:54321/functions/v1/mobile-money")
	v.SetDefault("payment.timeout", 30*time.Second)
	v.SetDefault("payment.retry_max", 2)
	v.SetDefault("email.from_address", "LeaseHub <no-reply@leasehub.local>")
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.interval", 5*time.Minute)
	v.SetDefault("reconcile.stale_after", 15*time.Minute)
	v.SetDefault("reconcile.review_after", 24*time.Hour)
	v.SetDefault("reconcile.batch_size", 50)
	v.SetDefault("reconcile.concurrency", 4)
	v.SetDefault("redis.addr", "localhost:6379")
}

// LoadConfig loads the configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
