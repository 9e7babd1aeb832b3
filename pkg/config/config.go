package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is constructed once at
// process start and passed by reference to each component; nothing reads the
// environment after New returns.
type Config struct {
	// Server configuration (ingestion gateway)
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
	}

	// Database configuration (event store)
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
	}

	// Redis configuration (ordered event queue)
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// Chat platform credentials and destinations
	Chat struct {
		VerificationToken string
		BotToken          string
		AlertChannelID    string
		APIBaseURL        string
	}

	// Classifier settings
	Classifier struct {
		APIKey      string
		Model       string
		MaxTokens   int
		Temperature float64
	}

	// Worker settings
	Worker struct {
		WarningThreshold  float64
		MaxAttempts       int
		WriteRetries      int
		VisibilityTimeout time.Duration
		PollInterval      time.Duration
		Concurrency       int
	}

	// Export settings
	Export struct {
		Bucket          string
		ProcessedPrefix string
		Region          string
		Endpoint        string
		UsePathStyle    bool
		ShardSize       int
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
	}

	// Metrics delivery for the short-lived job binaries
	Metrics struct {
		PushGatewayURL string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Timezone is the display timezone used for date/month derivation and
	// digest windows.
	Timezone string
}

// New builds a Config from the environment. A .env file is loaded first when
// present, matching how every deployment of this service is wired.
func New() (*Config, error) {
	godotenv.Load()

	cfg := &Config{}

	cfg.Server.Port = getEnvString("PORT", "8080")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)

	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "emotion-pulse")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)

	cfg.Redis.Addr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Chat.VerificationToken = getEnvString("VERIFICATION_TOKEN", "")
	cfg.Chat.BotToken = getEnvString("BOT_OAUTH_TOKEN", "")
	cfg.Chat.AlertChannelID = getEnvString("RESULT_CHANNEL_ID", "")
	cfg.Chat.APIBaseURL = getEnvString("CHAT_API_BASE_URL", "https://slack.com/api")

	cfg.Classifier.APIKey = getEnvString("OPENAI_API_KEY", "")
	cfg.Classifier.Model = getEnvString("CHAT_MODEL", "gpt-4o-mini")
	cfg.Classifier.MaxTokens = getEnvInt("CLASSIFIER_MAX_TOKENS", 300)
	cfg.Classifier.Temperature = getEnvFloat("CLASSIFIER_TEMPERATURE", 0.0)

	cfg.Worker.WarningThreshold = getEnvFloat("IMMEDIATE_WARNING_THRESHOLD", 0.6)
	cfg.Worker.MaxAttempts = getEnvInt("QUEUE_MAX_ATTEMPTS", 5)
	cfg.Worker.WriteRetries = getEnvInt("STORE_WRITE_RETRIES", 3)
	cfg.Worker.VisibilityTimeout = getEnvDuration("QUEUE_VISIBILITY_TIMEOUT", 10*time.Minute)
	cfg.Worker.PollInterval = getEnvDuration("QUEUE_POLL_INTERVAL", 250*time.Millisecond)
	cfg.Worker.Concurrency = getEnvInt("WORKER_CONCURRENCY", 4)

	cfg.Export.Bucket = getEnvString("BUCKET_NAME", "")
	cfg.Export.ProcessedPrefix = getEnvString("PROCESSED_S3_FOLDER", "processed/")
	cfg.Export.Region = getEnvString("AWS_REGION", "us-east-1")
	cfg.Export.Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.Export.UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", false)
	cfg.Export.ShardSize = getEnvInt("EXPORT_SHARD_SIZE", 500)

	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 20)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 40)

	cfg.Metrics.PushGatewayURL = getEnvString("PUSHGATEWAY_URL", "")

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.Timezone = getEnvString("DISPLAY_TIMEZONE", "Asia/Tokyo")

	return cfg, nil
}

// Location resolves the configured display timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// DSN renders the PostgreSQL connection string for the event store.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
