// Package config loads service settings from a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Label and embedding source names.
const (
	SourceKeyword = "keyword"
	SourcePseudo  = "pseudo"
	SourceOllama  = "ollama"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all service configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	DBDriver   string
	SQLitePath string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	UploadsDir   string
	OrganizedDir string
	MaxUploadMB  int

	LabelSource     string
	EmbeddingSource string

	OllamaHost     string
	OllamaPort     int
	Model          string
	EmbeddingModel string
	OllamaTimeout  time.Duration
	OllamaRetryMax int
	// OllamaRateLimit caps Ollama embedding requests per second; 0 disables it.
	OllamaRateLimit float64
	OllamaCacheSize int

	// PersonSimilarityThreshold is the cosine similarity an embedding signature
	// must exceed to be grouped with an existing person.
	PersonSimilarityThreshold float64
	HashFallback              bool
	PseudoEmbeddingDimensions int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "photos.db")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("UPLOADS_DIR", "./uploads")
	v.SetDefault("ORGANIZED_DIR", "./organized")
	v.SetDefault("MAX_UPLOAD_MB", 10)

	v.SetDefault("LABEL_SOURCE", SourceKeyword)
	v.SetDefault("EMBEDDING_SOURCE", SourcePseudo)

	v.SetDefault("OLLAMA_HOST", "localhost")
	v.SetDefault("OLLAMA_PORT", 11434)
	v.SetDefault("MODEL", "gemma3")
	v.SetDefault("EMBEDDING_MODEL", "nomic-embed-text")
	v.SetDefault("OLLAMA_TIMEOUT", "60s")
	v.SetDefault("OLLAMA_RETRY_MAX", 3)
	v.SetDefault("OLLAMA_RATE_LIMIT", 0)
	v.SetDefault("OLLAMA_CACHE_SIZE", 1024)

	v.SetDefault("PERSON_SIMILARITY_THRESHOLD", 0.85)
	v.SetDefault("HASH_FALLBACK", true)
	v.SetDefault("PSEUDO_EMBEDDING_DIMENSIONS", 128)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
}

// Load reads the optional env file at path and overlays environment variables.
// A missing env file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					slog.Warn("Failed to read env file", "path", path, "error", err)
				}
			}
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		Port:      v.GetString("PORT"),
		LogLevel:  strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat: strings.ToLower(v.GetString("LOG_FORMAT")),

		DBDriver:   strings.ToLower(v.GetString("DB_DRIVER")),
		SQLitePath: v.GetString("SQLITE_PATH"),
		DBHost:     v.GetString("DB_HOST"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBPort:     v.GetString("DB_PORT"),
		DBSSLMode:  v.GetString("DB_SSLMODE"),

		UploadsDir:   v.GetString("UPLOADS_DIR"),
		OrganizedDir: v.GetString("ORGANIZED_DIR"),
		MaxUploadMB:  v.GetInt("MAX_UPLOAD_MB"),

		LabelSource:     strings.ToLower(v.GetString("LABEL_SOURCE")),
		EmbeddingSource: strings.ToLower(v.GetString("EMBEDDING_SOURCE")),

		OllamaHost:     v.GetString("OLLAMA_HOST"),
		OllamaPort:     v.GetInt("OLLAMA_PORT"),
		Model:          v.GetString("MODEL"),
		EmbeddingModel: v.GetString("EMBEDDING_MODEL"),
		OllamaTimeout:  v.GetDuration("OLLAMA_TIMEOUT"),

		OllamaRetryMax:  v.GetInt("OLLAMA_RETRY_MAX"),
		OllamaRateLimit: v.GetFloat64("OLLAMA_RATE_LIMIT"),
		OllamaCacheSize: v.GetInt("OLLAMA_CACHE_SIZE"),

		PersonSimilarityThreshold: v.GetFloat64("PERSON_SIMILARITY_THRESHOLD"),
		HashFallback:              v.GetBool("HASH_FALLBACK"),
		PseudoEmbeddingDimensions: v.GetInt("PSEUDO_EMBEDDING_DIMENSIONS"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH must be set when DB_DRIVER is sqlite")
		}
	case DriverPostgres:
		if c.DBHost == "" || c.DBUser == "" || c.DBPassword == "" || c.DBName == "" || c.DBPort == "" {
			return errors.New("missing required database settings: DB_HOST, DB_USER, DB_PASSWORD, DB_NAME and DB_PORT must be set for postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.LabelSource != SourceKeyword && c.LabelSource != SourceOllama {
		return fmt.Errorf("unsupported LABEL_SOURCE %q", c.LabelSource)
	}
	if c.EmbeddingSource != SourcePseudo && c.EmbeddingSource != SourceOllama {
		return fmt.Errorf("unsupported EMBEDDING_SOURCE %q", c.EmbeddingSource)
	}
	if c.PersonSimilarityThreshold <= 0 || c.PersonSimilarityThreshold > 1 {
		return fmt.Errorf("PERSON_SIMILARITY_THRESHOLD must be in (0,1], got %v", c.PersonSimilarityThreshold)
	}
	if c.PseudoEmbeddingDimensions < 8 {
		return fmt.Errorf("PSEUDO_EMBEDDING_DIMENSIONS must be at least 8, got %d", c.PseudoEmbeddingDimensions)
	}
	if c.OllamaRetryMax < 0 || c.OllamaRateLimit < 0 {
		return errors.New("OLLAMA_RETRY_MAX and OLLAMA_RATE_LIMIT must not be negative")
	}
	if c.OllamaCacheSize <= 0 {
		return errors.New("OLLAMA_CACHE_SIZE must be a positive integer")
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be a positive integer")
	}
	if c.UploadsDir == "" || c.OrganizedDir == "" {
		return errors.New("UPLOADS_DIR and ORGANIZED_DIR must be set")
	}
	return nil
}

// PostgresDSN builds the gorm postgres connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// OllamaURL returns the base API url of the Ollama server.
func (c *Config) OllamaURL() string {
	return fmt.Sprintf("http://%s:%d/api", c.OllamaHost, c.OllamaPort)
}
