package infra

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Job store backends selectable through JOB_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv  string
	Host    string
	Port    string
	Workers int

	QueueSize int

	AICoreURL          string
	AICoreTimeout      time.Duration
	AICoreMaxRetries   int
	AICoreRetryBackoff time.Duration
	OllamaURL          string

	LogLevel  string
	LogFormat string

	JobStore      string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	RateLimitMaxRequests int
	RateLimitWindow      time.Duration

	CORSAllowedOrigins []string
	ArtifactsPath      string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	ShutdownTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "production"),
		Host:    getEnv("GENESIS_HOST", "127.0.0.1"),
		Port:    getEnv("GENESIS_PORT", "8080"),
		Workers: getEnvInt("GENESIS_WORKERS", runtime.NumCPU()),

		QueueSize: getEnvInt("GENESIS_QUEUE_SIZE", 100),

		AICoreURL:          strings.TrimRight(getEnv("AI_CORE_URL", "http://127.0.0.1:8000"), "/"),
		AICoreTimeout:      time.Second * time.Duration(getEnvInt("AI_CORE_TIMEOUT", 300)),
		AICoreMaxRetries:   getEnvInt("AI_CORE_MAX_RETRIES", 3),
		AICoreRetryBackoff: time.Millisecond * time.Duration(getEnvInt("AI_CORE_RETRY_BACKOFF_MS", 500)),
		OllamaURL:          strings.TrimRight(getEnv("OLLAMA_URL", "http://localhost:11434"), "/"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		JobStore:      strings.ToLower(getEnv("JOB_STORE", StoreMemory)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "genesis"),

		RateLimitMaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 10),
		RateLimitWindow:      time.Second * time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ArtifactsPath:      strings.TrimSpace(os.Getenv("ARTIFACTS_PATH")),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		ShutdownTimeout:  time.Second * time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)),
	}

	if cfg.Workers < 1 {
		return nil, fmt.Errorf("GENESIS_WORKERS must be at least 1")
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("GENESIS_QUEUE_SIZE must be at least 1")
	}
	if cfg.AICoreTimeout <= 0 {
		return nil, fmt.Errorf("AI_CORE_TIMEOUT must be positive")
	}
	if cfg.AICoreMaxRetries < 0 {
		return nil, fmt.Errorf("AI_CORE_MAX_RETRIES must not be negative")
	}
	if cfg.RateLimitMaxRequests < 1 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("rate limit requires positive RATE_LIMIT_MAX_REQUESTS and RATE_LIMIT_WINDOW_SECONDS")
	}

	switch cfg.JobStore {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when JOB_STORE=postgres")
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGODB_URI is required when JOB_STORE=mongo")
		}
	default:
		return nil, fmt.Errorf("unsupported JOB_STORE %q", cfg.JobStore)
	}

	return cfg, nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// GenerationBudget is the longest a single job may spend in the generation
// client, counting every retry.
func (c *Config) GenerationBudget() time.Duration {
	attempts := time.Duration(c.AICoreMaxRetries + 1)
	return c.AICoreTimeout*attempts + c.AICoreRetryBackoff*attempts*4 + 30*time.Second
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
