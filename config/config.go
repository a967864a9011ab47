// Package config loads service configuration from the environment, with an
// optional .env overlay for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the service reads at startup.
type Config struct {
	AppEnv   string
	LogLevel string

	// Model providers.
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	EmbeddingModel  string
	CohereAPIKey    string
	RerankModel     string

	// Stores.
	DatabaseURL  string
	RedisURL     string
	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string
	QdrantTLS    bool

	// Parsing collaborator.
	ParserURL    string
	ParserAPIKey string

	// Auth.
	APIKeyPrefix string
	JWTSecret    string

	// Sessions.
	IdleSessionTimeout   time.Duration
	MaxSessionsPerTenant int
}

// Load reads the environment (after overlaying .env when present) and
// validates the required settings.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:       getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		EmbeddingModel:       getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		CohereAPIKey:         os.Getenv("COHERE_API_KEY"),
		RerankModel:          getEnv("RERANK_MODEL", "rerank-english-v3.0"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QdrantHost:           getEnv("QDRANT_HOST", "localhost"),
		QdrantAPIKey:         os.Getenv("QDRANT_API_KEY"),
		ParserURL:            os.Getenv("PARSER_URL"),
		ParserAPIKey:         os.Getenv("PARSER_API_KEY"),
		APIKeyPrefix:         getEnv("API_KEY_PREFIX", "ent_live_"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		MaxSessionsPerTenant: getEnvInt("MAX_SESSIONS_PER_TENANT", 100),
	}
	cfg.QdrantPort = getEnvInt("QDRANT_PORT", 6334)
	cfg.QdrantTLS = getEnvBool("QDRANT_TLS", false)
	cfg.IdleSessionTimeout = time.Duration(getEnvInt("IDLE_SESSION_TIMEOUT_MINUTES", 30)) * time.Minute

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.CohereAPIKey == "" {
		return nil, fmt.Errorf("COHERE_API_KEY is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
