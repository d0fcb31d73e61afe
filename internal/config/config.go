package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	SiteURL     string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Auth      AuthConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Payments  PaymentsConfig
	Outbox    OutboxConfig

	SnowflakeNode int64
}

// AuthConfig describes how bearer tokens issued by the hosted auth provider
// are verified.
type AuthConfig struct {
	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	ResetTokenTTL time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	Enabled    bool
	PolicyFile string
}

type EmailConfig struct {
	Provider string
	SMTP     SMTPConfig
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

type PaymentsConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAccountID     string
	DefaultCurrency     string
}

type OutboxConfig struct {
	AMQPURL      string
	Exchange     string
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

func (c OutboxConfig) Enabled() bool {
	return strings.TrimSpace(c.AMQPURL) != ""
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "virtuepath"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		SiteURL:      strings.TrimRight(getenv("SITE_URL", "http://localhost:3000"), "/"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Auth: AuthConfig{
			JWTSecret:     strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			JWTIssuer:     strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
			JWTAudience:   strings.TrimSpace(getenv("AUTH_JWT_AUDIENCE", "authenticated")),
			ResetTokenTTL: time.Duration(getenvInt("AUTH_RESET_TOKEN_TTL_MINUTES", 30)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getenvBool("RATE_LIMIT_ENABLED", true),
			PolicyFile: strings.TrimSpace(getenv("RATE_LIMIT_POLICY_FILE", "")),
		},
		Email: EmailConfig{
			Provider: strings.ToLower(getenv("EMAIL_PROVIDER", "noop")),
			SMTP: SMTPConfig{
				Host:      getenv("SMTP_HOST", ""),
				Port:      getenvInt("SMTP_PORT", 587),
				Username:  getenv("SMTP_USERNAME", ""),
				Password:  getenv("SMTP_PASSWORD", ""),
				FromEmail: getenv("SMTP_FROM_EMAIL", "no-reply@virtuepath.local"),
				FromName:  getenv("SMTP_FROM_NAME", "VirtuePath"),
			},
		},
		Payments: PaymentsConfig{
			StripeSecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			StripeAccountID:     strings.TrimSpace(getenv("STRIPE_ACCOUNT_ID", "")),
			DefaultCurrency:     strings.ToLower(getenv("PAYMENTS_DEFAULT_CURRENCY", "usd")),
		},
		Outbox: OutboxConfig{
			AMQPURL:      strings.TrimSpace(getenv("AMQP_URL", "")),
			Exchange:     getenv("OUTBOX_EXCHANGE", "virtuepath.events"),
			PollInterval: time.Duration(getenvInt("OUTBOX_POLL_INTERVAL_SECONDS", 5)) * time.Second,
			BatchSize:    getenvInt("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts:  getenvInt("OUTBOX_MAX_ATTEMPTS", 10),
		},
		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
