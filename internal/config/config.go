package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort     string
	DatabaseType   string
	DatabasePath   string
	DatabaseURL    string
	MigrationsPath string

	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int

	// ActivitySource selects where activity records are read from: "sql" or "mongo"
	ActivitySource string
	MongoURI       string
	MongoDatabase  string

	StreakGuard   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RabbitMQURI string

	AWSRegion        string
	SESFromEmail     string
	SESFromName      string
	AppBaseURL       string
	ReminderInterval time.Duration

	LogLevel  string
	LogFormat string
	Debug     bool
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	return &Config{
		ServerPort:     getEnv("PORT", "8080"),
		DatabaseType:   getEnv("DB_TYPE", "sqlite"),
		DatabasePath:   getEnv("DB_PATH", "./medprep.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MigrationsPath: getEnv("MIGRATIONS_PATH", ""),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		ActivitySource: strings.ToLower(getEnv("ACTIVITY_SOURCE", "sql")),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:  getEnv("MONGO_DATABASE", "medprep"),

		StreakGuard:   strings.ToLower(getEnv("STREAK_GUARD", "none")),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RabbitMQURI: getEnv("RABBITMQ_URI", ""),

		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail:     getEnv("SES_FROM_EMAIL", ""),
		SESFromName:      getEnv("SES_FROM_NAME", "MedPrep"),
		AppBaseURL:       getEnv("APP_BASE_URL", "http://localhost:8080"),
		ReminderInterval: reminderInterval(getEnvDuration("REMINDER_INTERVAL", MaxReminderInterval)),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		Debug:     getEnvBool("DEBUG", false),
	}
}

// MaxReminderInterval is the longest reminder tick. Reminders fire on the tick that lands
// in an owner's preferred hour, so every hour needs at least one.
const MaxReminderInterval = time.Hour

func reminderInterval(d time.Duration) time.Duration {
	if d <= 0 || d > MaxReminderInterval {
		slog.Warn("REMINDER_INTERVAL out of range, using maximum", "value", d, "max", MaxReminderInterval)
		return MaxReminderInterval
	}
	return d
}

// SlogLevel maps LOG_LEVEL to a slog level. DEBUG=true always wins.
func (c *Config) SlogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EmailEnabled reports whether reminder email can be sent
func (c *Config) EmailEnabled() bool {
	return c.SESFromEmail != ""
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Warn("invalid number in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return parsed
}
