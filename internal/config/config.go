package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vector index backends selectable with VECTOR_INDEX.
const (
	VectorIndexChromem  = "chromem"
	VectorIndexPinecone = "pinecone"
	VectorIndexMemory   = "memory"
)

type Config struct {
	GeminiAPIKey   string
	ChatModel      string
	EmbeddingModel string

	DatabaseURL   string
	MongoDatabase string

	HTTPPort  string
	LogLevel  string
	JWTSecret string

	HistoryLimit      int
	EmbedTimeout      time.Duration
	CompletionTimeout time.Duration

	VectorIndex       string
	VectorDir         string
	VectorCollection  string
	PineconeAPIKey    string
	PineconeIndexHost string

	RedisURL      string
	EmbedCacheTTL time.Duration

	DIDAPIKey         string
	DIDBaseURL        string
	DIDSourceURL      string
	AvatarTimeout     time.Duration
	AvatarMaxAttempts int

	IngestRPS float64
}

// LoadConfig reads the environment, optionally seeded from a .env file. Commands check
// the settings they depend on with Validate or ValidateIngest.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		ChatModel:      getEnv("CHAT_MODEL", "gemini-2.0-flash"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "embedding-001"),

		DatabaseURL:   getEnv("DATABASE_URL", "assistant.db"),
		MongoDatabase: getEnv("MONGO_DATABASE", "gptoncrack"),

		HTTPPort:  getEnv("HTTP_PORT", "8080"),
		LogLevel:  strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		JWTSecret: getEnv("JWT_SECRET", ""),

		HistoryLimit:      getEnvAsInt("HISTORY_LIMIT", 10),
		EmbedTimeout:      getEnvAsDuration("EMBED_TIMEOUT", 10*time.Second),
		CompletionTimeout: getEnvAsDuration("COMPLETION_TIMEOUT", 45*time.Second),

		VectorIndex:       strings.ToLower(getEnv("VECTOR_INDEX", VectorIndexChromem)),
		VectorDir:         getEnv("VECTOR_DIR", "data/vectors"),
		VectorCollection:  getEnv("VECTOR_COLLECTION", "knowledge"),
		PineconeAPIKey:    getEnv("PINECONE_API_KEY", ""),
		PineconeIndexHost: getEnv("PINECONE_INDEX_HOST", ""),

		RedisURL:      getEnv("REDIS_URL", ""),
		EmbedCacheTTL: getEnvAsDuration("EMBED_CACHE_TTL", 24*time.Hour),

		DIDAPIKey:         getEnv("DID_API_KEY", ""),
		DIDBaseURL:        getEnv("DID_BASE_URL", "https://api.d-id.com"),
		DIDSourceURL:      getEnv("DID_SOURCE_URL", ""),
		AvatarTimeout:     getEnvAsDuration("AVATAR_TIMEOUT", 60*time.Second),
		AvatarMaxAttempts: getEnvAsInt("AVATAR_MAX_ATTEMPTS", 30),

		IngestRPS: getEnvAsFloat64("INGEST_RPS", 25),
	}
	return cfg, nil
}

// Validate checks everything the HTTP service needs and reports every missing or
// inconsistent setting at once.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateIngest checks the settings ingestion needs: the model key and the vector index.
func (c *Config) ValidateIngest() error {
	return c.validate(false)
}

func (c *Config) validate(requireJWT bool) error {
	var missing []string
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if requireJWT && c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	switch c.VectorIndex {
	case VectorIndexChromem, VectorIndexMemory:
	case VectorIndexPinecone:
		if c.PineconeAPIKey == "" {
			missing = append(missing, "PINECONE_API_KEY")
		}
		if c.PineconeIndexHost == "" {
			missing = append(missing, "PINECONE_INDEX_HOST")
		}
	default:
		return fmt.Errorf("unsupported VECTOR_INDEX %q", c.VectorIndex)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("HISTORY_LIMIT must not be negative")
	}
	return nil
}

// AvatarEnabled reports whether the video synthesis provider is configured.
func (c *Config) AvatarEnabled() bool {
	return c.DIDAPIKey != "" && c.DIDSourceURL != ""
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
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

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
