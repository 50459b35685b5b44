package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	NATS     NATSConfig
	Stripe   StripeConfig
	Ledger   LedgerConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string
	Expiration int // in hours
}

// NATSConfig holds NATS event bus configuration
type NATSConfig struct {
	URL        string
	StreamName string
	Enabled    bool
}

// StripeConfig holds payment processor configuration
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

// LedgerConfig tunes the wallet/payout engine
type LedgerConfig struct {
	// Currency is the minor-unit currency code applied to lazily created wallets.
	Currency string
	// CommissionBps is the platform commission on ride earnings, in basis points.
	CommissionBps int
	// MinPayoutAmount is the smallest payout a driver may request, in minor units.
	MinPayoutAmount int64
	// ProcessorTimeout bounds every call to the payment processor.
	ProcessorTimeout time.Duration
	// PayoutStaleness is how long a payout may sit in a non-terminal state
	// before the reconciliation sweep fails it and refunds the wallet.
	PayoutStaleness time.Duration
	// ReconcileInterval is the sweep period.
	ReconcileInterval time.Duration
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "driverledger"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Expiration: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		NATS: NATSConfig{
			URL:        getEnv("NATS_URL", "nats://localhost:4222"),
			StreamName: getEnv("NATS_STREAM", "LEDGER"),
			Enabled:    getEnvAsBool("NATS_ENABLED", true),
		},
		Stripe: StripeConfig{
			APIKey:        getEnv("STRIPE_API_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Ledger: LedgerConfig{
			Currency:          getEnv("LEDGER_CURRENCY", "usd"),
			CommissionBps:     getEnvAsInt("LEDGER_COMMISSION_BPS", 2000),
			MinPayoutAmount:   getEnvAsInt64("LEDGER_MIN_PAYOUT_AMOUNT", 500),
			ProcessorTimeout:  getEnvAsDuration("LEDGER_PROCESSOR_TIMEOUT", 15*time.Second),
			PayoutStaleness:   getEnvAsDuration("LEDGER_PAYOUT_STALENESS", 30*time.Minute),
			ReconcileInterval: getEnvAsDuration("LEDGER_RECONCILE_INTERVAL", 5*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Ledger.CommissionBps < 0 || c.Ledger.CommissionBps >= 10000 {
		return fmt.Errorf("LEDGER_COMMISSION_BPS must be in [0, 10000), got %d", c.Ledger.CommissionBps)
	}
	if c.Ledger.MinPayoutAmount <= 0 {
		return fmt.Errorf("LEDGER_MIN_PAYOUT_AMOUNT must be positive, got %d", c.Ledger.MinPayoutAmount)
	}
	if c.Ledger.PayoutStaleness <= 0 {
		return fmt.Errorf("LEDGER_PAYOUT_STALENESS must be positive")
	}
	if c.Ledger.ReconcileInterval <= 0 {
		return fmt.Errorf("LEDGER_RECONCILE_INTERVAL must be positive")
	}
	if c.Server.Environment == "production" && c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// RedisAddr returns the Redis address
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// getEnv gets an environment variable with a fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsInt gets an environment variable as integer with a fallback
func getEnvAsInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getEnvAsDuration accepts Go duration syntax ("30m", "15s").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
