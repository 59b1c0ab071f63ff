package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration, loaded once at startup and passed
// explicitly to the components that need it.
type Config struct {
	Host     string
	Port     string
	Env      string
	LogLevel string

	// AppHost is the externally reachable host used to build verification
	// links sent over email and whatsapp.
	AppHost string

	// AppKey salts password hashes and access tokens.
	AppKey string

	DatabaseURL string
	PoolMinSize int32
	PoolMaxSize int32

	RedisAddr     string
	RedisPassword string

	WhatsAppBaseURL string
	WhatsAppAPIKey  string

	SendGridAPIKey string

	TelegramBaseURL     string
	TelegramBotToken    string
	TelegramSecretToken string

	XenditBaseURL   string
	XenditSecretKey string

	// EnqueueInterval is the promoter tick; DispatchInterval the dispatcher
	// tick. DispatchCronExpr rate-limits outbound sends to one per cron
	// window.
	EnqueueInterval  time.Duration
	DispatchInterval time.Duration
	DispatchCronExpr string

	// MinRecurringWindow is the product-policy floor on end_at - start_at
	// for recurring schedules.
	MinRecurringWindow time.Duration

	OutboundTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Host:     getEnv("HOST", "0.0.0.0"),
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AppHost: getEnv("APP_HOST", "localhost:8080"),
		AppKey:  getEnv("APPKEY", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		PoolMinSize: int32(getEnvAsInt("PG_POOL_MIN_SIZE", 2)),
		PoolMaxSize: int32(getEnvAsInt("PG_POOL_MAX_SIZE", 10)),

		RedisAddr:     getEnv("REDIS_CONNECTION", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		WhatsAppBaseURL: getEnv("WHATSAPP_BASE_URL", ""),
		WhatsAppAPIKey:  getEnv("WHATSAPP_API_KEY", ""),

		SendGridAPIKey: getEnv("EMAIL_SENDGRID_API_KEY", ""),

		TelegramBaseURL:     getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramSecretToken: getEnv("TELEGRAM_SECRET_TOKEN", ""),

		XenditBaseURL:   getEnv("XENDIT_BASE_URL", "https://api.xendit.co"),
		XenditSecretKey: getEnv("XENDIT_SECRET_KEY", ""),

		EnqueueInterval:  getEnvAsDuration("ENQUEUE_INTERVAL", 15*time.Second),
		DispatchInterval: getEnvAsDuration("DISPATCH_INTERVAL", 1*time.Second),
		DispatchCronExpr: getEnv("DISPATCH_CRON_EXPR", "*/30 * * * * *"),

		MinRecurringWindow: getEnvAsDuration("MIN_RECURRING_WINDOW", 5*24*time.Hour),

		OutboundTimeout: getEnvAsDuration("OUTBOUND_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
