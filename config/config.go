// Package config loads the run configuration from the environment.
//
// Values come from process environment variables prefixed with KBEMBED_
// (the bare names are accepted too), optionally seeded from a .env file in
// the working directory. A Config is built once at startup and then only
// read.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/poiesic/kbembed/ai"
	"github.com/poiesic/kbembed/chunking"
	"github.com/poiesic/kbembed/scheduler"
)

// EnvPrefix prefixes every variable read by Load.
const EnvPrefix = "KBEMBED"

// Chunk store backends.
const (
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
)

var (
	// ErrMissingRequired is returned when a required setting is empty.
	ErrMissingRequired = errors.New("missing required configuration")

	// ErrInvalidValue is returned when a setting has an unusable value.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Config holds every setting of a kbembed process.
type Config struct {
	// Storage
	Store  string `envconfig:"STORE" default:"badger"`
	DBPath string `envconfig:"DB_PATH" default:"data/kbembed"`

	// Embedding provider
	Provider       string        `envconfig:"PROVIDER" default:"openai"`
	EmbeddingHost  string        `envconfig:"EMBEDDING_HOST" default:"https://api.openai.com/v1"`
	EmbeddingModel string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	APIKey         string        `envconfig:"API_KEY"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`

	// Chunking
	ChunkSize        int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap     int `envconfig:"CHUNK_OVERLAP" default:"200"`
	MinContentLength int `envconfig:"MIN_CONTENT_LENGTH" default:"20"`

	// Scheduling
	BatchSize         int           `envconfig:"BATCH_SIZE" default:"50"`
	Concurrency       int           `envconfig:"CONCURRENCY_LIMIT" default:"8"`
	MaxRetries        int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryDelay        time.Duration `envconfig:"RETRY_DELAY" default:"1s"`
	RequestsPerSecond float64       `envconfig:"REQUESTS_PER_SECOND" default:"0"`
	Dimensions        int           `envconfig:"DIMENSIONS" default:"0"`
	NormalizeVectors  bool          `envconfig:"NORMALIZE_VECTORS" default:"false"`
}

// Load reads .env (if present) and the environment, then validates the result.
// Provider-specific key variables (OPENAI_API_KEY, GEMINI_API_KEY) fill in
// an empty API key.
func Load() (*Config, error) {
	// A missing .env is fine: the variables may come from the shell.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, err
	}
	cfg.applyKeyFallback()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration Load produces from an empty environment.
func Default() *Config {
	return &Config{
		Store:            StoreBadger,
		DBPath:           "data/kbembed",
		Provider:         ai.ProviderOpenAI,
		EmbeddingHost:    "https://api.openai.com/v1",
		EmbeddingModel:   "text-embedding-3-small",
		RequestTimeout:   60 * time.Second,
		ChunkSize:        chunking.DefaultChunkSize,
		ChunkOverlap:     chunking.DefaultChunkOverlap,
		MinContentLength: 20,
		BatchSize:        50,
		Concurrency:      8,
		MaxRetries:       3,
		RetryDelay:       time.Second,
	}
}

func (c *Config) applyKeyFallback() {
	if c.APIKey != "" {
		return
	}
	switch strings.ToLower(c.Provider) {
	case ai.ProviderGemini:
		c.APIKey = os.Getenv("GEMINI_API_KEY")
	case ai.ProviderOpenAI:
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate checks the settings every command needs. Credentials are checked
// later, when an embedding provider is actually opened.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: DB_PATH", ErrMissingRequired)
	}
	switch c.Store {
	case StoreBadger, StoreSQLite:
	case "":
		return fmt.Errorf("%w: STORE", ErrMissingRequired)
	default:
		return fmt.Errorf("%w: STORE must be %s or %s, got %q", ErrInvalidValue, StoreBadger, StoreSQLite, c.Store)
	}
	if c.Provider == "" {
		return fmt.Errorf("%w: PROVIDER", ErrMissingRequired)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EMBEDDING_MODEL", ErrMissingRequired)
	}
	if c.MinContentLength < 0 {
		return fmt.Errorf("%w: MIN_CONTENT_LENGTH cannot be negative", ErrInvalidValue)
	}
	if _, err := c.Chunker(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return nil
}

// AIConfig returns the embedding provider configuration.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.Provider),
		ai.WithEmbeddingHost(c.EmbeddingHost),
		ai.WithEmbeddingModel(c.EmbeddingModel),
		ai.WithAPIKey(c.APIKey),
		ai.WithTimeout(c.RequestTimeout),
	)
}

// Chunker returns a chunker for the configured size and overlap.
func (c *Config) Chunker() (*chunking.Chunker, error) {
	return chunking.NewChunker(c.ChunkSize, c.ChunkOverlap)
}

// SchedulerConfig returns the embedding run configuration.
func (c *Config) SchedulerConfig() *scheduler.Config {
	return &scheduler.Config{
		BatchSize:         c.BatchSize,
		Concurrency:       c.Concurrency,
		MaxRetries:        c.MaxRetries,
		RetryDelay:        c.RetryDelay,
		RequestsPerSecond: c.RequestsPerSecond,
		Dimensions:        c.Dimensions,
		NormalizeVectors:  c.NormalizeVectors,
		ReportInterval:    c.BatchSize,
	}
}
