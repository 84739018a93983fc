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

	HTTPAddr string

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

	RedisAddr string

	GatewayProvider  string
	GatewaySecretKey string
	GatewayBaseURL   string
	GatewayTimeout   time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	DispatchInterval     time.Duration
	DispatchBatchSize    int
	DispatchWorkers      int
	DispatchRunLockTTL   time.Duration
	OverdueToleranceDays int
}

// Module provides Config to the fx graph.
var Module = fx.Provide(Load)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "harvestbox"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "harvestbox"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		RedisAddr: getenv("REDIS_ADDR", ""),

		GatewayProvider:  getenv("PAYMENT_GATEWAY", "sandbox"),
		GatewaySecretKey: strings.TrimSpace(getenv("PAYMENT_GATEWAY_SECRET_KEY", "")),
		GatewayBaseURL:   getenv("PAYMENT_GATEWAY_BASE_URL", ""),
		GatewayTimeout:   getenvDuration("PAYMENT_GATEWAY_TIMEOUT", 30*time.Second),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenvInt("SMTP_PORT", 587),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "orders@harvestbox.example"),

		DispatchInterval:     getenvDuration("DISPATCH_INTERVAL", 24*time.Hour),
		DispatchBatchSize:    getenvInt("DISPATCH_BATCH_SIZE", 50),
		DispatchWorkers:      getenvInt("DISPATCH_WORKERS", 4),
		DispatchRunLockTTL:   getenvDuration("DISPATCH_RUN_LOCK_TTL", 10*time.Minute),
		OverdueToleranceDays: getenvInt("OVERDUE_TOLERANCE_DAYS", 0),
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
