package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application configuration.
var Module = fx.Provide(Load)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

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

	RedisAddr     string
	RedisPassword string

	RateLimitEnabled   bool
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Background processing.
	OutboxPollInterval  time.Duration
	OutboxMaxRetries    int
	WebhookPollInterval time.Duration
	WebhookMaxRetries   int
	WebhookTimeout      time.Duration

	// Routing.
	DefaultCommissionRate string
	BinCacheTTL           time.Duration

	// Mock provider.
	MockProviderMode    string
	MockProviderLatency time.Duration
	ProviderCallTimeout time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "payway"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payway"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		RateLimitEnabled:   getenvBool("RATE_LIMIT_ENABLED", false),
		RateLimitPerSecond: getenvFloat("RATE_LIMIT_PER_SECOND", 50),
		RateLimitBurst:     getenvInt("RATE_LIMIT_BURST", 100),

		OutboxPollInterval:  getenvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
		OutboxMaxRetries:    getenvInt("OUTBOX_MAX_RETRIES", 3),
		WebhookPollInterval: getenvDuration("WEBHOOK_POLL_INTERVAL", 10*time.Second),
		WebhookMaxRetries:   getenvInt("WEBHOOK_MAX_RETRIES", 5),
		WebhookTimeout:      getenvDuration("WEBHOOK_TIMEOUT", 5*time.Second),

		DefaultCommissionRate: getenv("ROUTING_DEFAULT_COMMISSION", "1.99"),
		BinCacheTTL:           getenvDuration("BIN_CACHE_TTL", 12*time.Hour),

		MockProviderMode:    strings.ToUpper(getenv("MOCK_PROVIDER_MODE", "SUCCESS")),
		MockProviderLatency: getenvDuration("MOCK_PROVIDER_LATENCY", 100*time.Millisecond),
		ProviderCallTimeout: getenvDuration("PROVIDER_CALL_TIMEOUT", 10*time.Second),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
