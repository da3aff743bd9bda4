package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	DatabaseURL     string
	Env             string

	// Global AI defaults, used when a tenant has no AI config of its own.
	AIProvider string
	AIAPIKey   string
	AIModel    string

	// Debounce window between the last message of a burst and the analysis run.
	AIDebounce time.Duration
	// Bounded window of recent messages handed to the provider.
	AIMessageWindow int
	// Provider-call retry policy.
	AIMaxAttempts    int
	AIRetryBaseDelay time.Duration

	// Worker pool and queue-level retry policy.
	WorkerConcurrency   int
	QueueMaxAttempts    int
	QueueRetryBaseDelay time.Duration

	// Shared secret for inbound message webhooks.
	WebhookSecret string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:     dbURL,
		Env:             env,

		AIProvider: strings.ToLower(getEnv("AI_PROVIDER", "")),
		AIAPIKey:   getEnv("AI_API_KEY", ""),
		AIModel:    getEnv("AI_MODEL", ""),

		AIDebounce:       getEnvDuration("AI_DEBOUNCE", 10*time.Second),
		AIMessageWindow:  getEnvInt("AI_MESSAGE_WINDOW", 20),
		AIMaxAttempts:    getEnvInt("AI_MAX_ATTEMPTS", 5),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 500*time.Millisecond),

		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
		QueueMaxAttempts:    getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
		QueueRetryBaseDelay: getEnvDuration("QUEUE_RETRY_BASE_DELAY", 2*time.Second),

		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid int %q, using default %d", key, raw, def)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid duration %q, using default %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}
