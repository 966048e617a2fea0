package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	LogFormat          string
	UserJWTSecret      string
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
	// Per-client limit on write endpoints; zero disables it.
	RateLimitPerSecond int
	RateLimitBurst     int

	// Document store
	DocstoreBackend    string
	DocstorePollPeriod time.Duration
	DatabaseURL        string
	MongoURI           string
	MongoDatabase      string
	DocumentsTable     string
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Notifications
	NotifyProvider         string
	UseMemoryQueue         bool
	NotificationQueueURL   string
	EmailServiceID         string
	AppointmentTemplateID  string
	BreakerMaxFailures     int
	BreakerOpenTimeout     time.Duration
	SendGridAPIKey         string
	SendGridFromEmail      string
	SendGridFromName       string
	SESFromEmail           string
	SESConfigurationSet    string
	NotificationWorkerWait time.Duration

	// Chat
	ChatReplyDelay    time.Duration
	ChatArchiveBucket string
	ChatArchivePrefix string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real env vars win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		UserJWTSecret:      getEnv("USER_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		RateLimitPerSecond: getEnvAsInt("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		DocstoreBackend:    strings.ToLower(strings.TrimSpace(getEnv("DOCSTORE_BACKEND", "memory"))),
		DocstorePollPeriod: getEnvAsDuration("DOCSTORE_POLL_INTERVAL", 2*time.Second),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDatabase:      getEnv("MONGO_DATABASE", "healsmart"),
		DocumentsTable:     getEnv("DOCUMENTS_TABLE", "healsmart_documents"),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		NotifyProvider:         strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_PROVIDER", "stub"))),
		UseMemoryQueue:         getEnvAsBool("USE_MEMORY_QUEUE", true),
		NotificationQueueURL:   getEnv("NOTIFICATION_QUEUE_URL", ""),
		EmailServiceID:         getEnv("EMAIL_SERVICE_ID", "service_healsmart"),
		AppointmentTemplateID:  getEnv("APPOINTMENT_TEMPLATE_ID", "template_appointment"),
		BreakerMaxFailures:     getEnvAsInt("NOTIFY_BREAKER_MAX_FAILURES", 5),
		BreakerOpenTimeout:     getEnvAsDuration("NOTIFY_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		SendGridAPIKey:         getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:      getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:       getEnv("SENDGRID_FROM_NAME", "HealSmart"),
		SESFromEmail:           getEnv("SES_FROM_EMAIL", ""),
		SESConfigurationSet:    getEnv("SES_CONFIGURATION_SET", ""),
		NotificationWorkerWait: getEnvAsDuration("NOTIFICATION_WORKER_WAIT", 20*time.Second),

		ChatReplyDelay:    getEnvAsDuration("CHAT_REPLY_DELAY", time.Second),
		ChatArchiveBucket: getEnv("CHAT_ARCHIVE_BUCKET", ""),
		ChatArchivePrefix: getEnv("CHAT_ARCHIVE_PREFIX", "chat-archive"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
