package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Qdrant        QdrantConfig
	Embedding     EmbeddingConfig
	Generation    GenerationConfig
	Retrieval     RetrievalConfig
	Persona       PersonaConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string `validate:"required"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string `validate:"required"`
	Port            int    `validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// QdrantConfig holds vector index configuration.
// The collection is pre-built offline; this service only queries it.
type QdrantConfig struct {
	URL        string `validate:"required,url"`
	APIKey     string
	Collection string `validate:"required"`
	Timeout    time.Duration
}

// EmbeddingConfig holds the embedding backend configuration
type EmbeddingConfig struct {
	BaseURL string `validate:"required,url"`
	APIKey  string
	Model   string `validate:"required"`
	Timeout time.Duration
}

// GenerationConfig holds the streaming generation backend configuration
type GenerationConfig struct {
	BaseURL     string `validate:"required,url"`
	APIKey      string
	Model       string  `validate:"required"`
	MaxTokens   int     `validate:"gt=0"`
	Temperature float64 `validate:"gte=0,lte=2"`
	Timeout     time.Duration
}

// RetrievalConfig bounds the similarity search
type RetrievalConfig struct {
	TopK           int `validate:"gt=0"`
	ScoreThreshold float64
}

// PersonaConfig identifies whose voice the agent answers in
type PersonaConfig struct {
	Name        string `validate:"required"`
	Description string
}

// AuthConfig holds optional bearer-token authentication.
// When Secret is empty the WebSocket endpoint is open (development mode).
type AuthConfig struct {
	Secret string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string `validate:"required,oneof=debug info warn error"`
	LogFormat string `validate:"required,oneof=json text"`
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env if present (no-op otherwise)
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Qdrant: QdrantConfig{
			URL:        getEnv("QDRANT_URL", "http://localhost:6333"),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "virtual-lenny"),
			Timeout:    getEnvAsDuration("QDRANT_TIMEOUT", 10*time.Second),
		},
		Embedding: EmbeddingConfig{
			BaseURL: getEnv("EMBEDDING_BASE_URL", "http://localhost:8081/v1"),
			APIKey:  getEnv("EMBEDDING_API_KEY", ""),
			Model:   getEnv("EMBEDDING_MODEL", "mxbai-embed-large-v1"),
			Timeout: getEnvAsDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Generation: GenerationConfig{
			BaseURL:     getEnv("GENERATION_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnv("GENERATION_API_KEY", ""),
			Model:       getEnv("GENERATION_MODEL", "gpt-4o-mini"),
			MaxTokens:   getEnvAsInt("GENERATION_MAX_TOKENS", 512),
			Temperature: getEnvAsFloat("GENERATION_TEMPERATURE", 0.5),
			Timeout:     getEnvAsDuration("GENERATION_TIMEOUT", 120*time.Second),
		},
		Retrieval: RetrievalConfig{
			TopK:           getEnvAsInt("RETRIEVAL_TOP_K", 3),
			ScoreThreshold: getEnvAsFloat("RETRIEVAL_SCORE_THRESHOLD", 0),
		},
		Persona: PersonaConfig{
			Name:        getEnv("PERSONA_NAME", "Lenny Rachitsky"),
			Description: getEnv("PERSONA_DESCRIPTION", "a thoughtful startup advisor and writer"),
		},
		Auth: AuthConfig{
			Secret: getEnv("AUTH_JWT_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks struct tags plus the cross-field rules tags cannot express
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("retrieval score threshold must be in [0,1], got %v", c.Retrieval.ScoreThreshold)
	}

	// Generation credentials are required outside development
	if c.IsProduction() && c.Generation.APIKey == "" {
		return fmt.Errorf("generation API key is required in production")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
