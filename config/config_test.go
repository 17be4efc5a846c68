package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/kbembed/ai"
	"github.com/poiesic/kbembed/config"
)

// isolateEnv clears every variable Load may read and runs the test in an
// empty directory, so a developer's .env does not leak in.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"STORE", "DB_PATH", "PROVIDER", "EMBEDDING_HOST", "EMBEDDING_MODEL", "API_KEY",
		"REQUEST_TIMEOUT", "CHUNK_SIZE", "CHUNK_OVERLAP", "MIN_CONTENT_LENGTH", "BATCH_SIZE",
		"CONCURRENCY_LIMIT", "MAX_RETRIES", "RETRY_DELAY", "REQUESTS_PER_SECOND", "DIMENSIONS",
		"NORMALIZE_VECTORS",
	} {
		unset(t, name)
		unset(t, config.EnvPrefix+"_"+name)
	}
	unset(t, "OPENAI_API_KEY")
	unset(t, "GEMINI_API_KEY")
	t.Chdir(t.TempDir())
}

func unset(t *testing.T, name string) {
	t.Helper()
	if old, ok := os.LookupEnv(name); ok {
		t.Cleanup(func() { os.Setenv(name, old) })
	}
	os.Unsetenv(name)
}

func TestLoad_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 50, cfg.BatchSize)
}

func TestLoad_FromEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("KBEMBED_STORE", "sqlite")
	t.Setenv("KBEMBED_BATCH_SIZE", "100")
	t.Setenv("CONCURRENCY_LIMIT", "4") // bare names are accepted
	t.Setenv("KBEMBED_RETRY_DELAY", "250ms")
	t.Setenv("KBEMBED_NORMALIZE_VECTORS", "true")
	t.Setenv("KBEMBED_REQUESTS_PER_SECOND", "2.5")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.StoreSQLite, cfg.Store)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.True(t, cfg.NormalizeVectors)
	assert.InDelta(t, 2.5, cfg.RequestsPerSecond, 1e-9)
}

func TestLoad_FromEnvFile(t *testing.T) {
	isolateEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(".", ".env"),
		[]byte("API_KEY=from-file\nKBEMBED_EMBEDDING_MODEL=text-embedding-3-large\n"), 0o644))
	// godotenv does not override variables that are already set.
	t.Cleanup(func() {
		os.Unsetenv("API_KEY")
		os.Unsetenv("KBEMBED_EMBEDDING_MODEL")
	})

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.APIKey)
	assert.Equal(t, "text-embedding-3-large", cfg.EmbeddingModel)
}

func TestLoad_APIKeyFallback(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.APIKey)

	t.Setenv("KBEMBED_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.APIKey)
}

func TestLoad_InvalidNumber(t *testing.T) {
	isolateEnv(t)
	t.Setenv("KBEMBED_BATCH_SIZE", "many")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"defaults", func(*config.Config) {}, nil},
		{"no db path", func(c *config.Config) { c.DBPath = "" }, config.ErrMissingRequired},
		{"no store", func(c *config.Config) { c.Store = "" }, config.ErrMissingRequired},
		{"unknown store", func(c *config.Config) { c.Store = "postgres" }, config.ErrInvalidValue},
		{"no model", func(c *config.Config) { c.EmbeddingModel = "" }, config.ErrMissingRequired},
		{"overlap too large", func(c *config.Config) { c.ChunkOverlap = c.ChunkSize }, config.ErrInvalidValue},
		{"zero batch", func(c *config.Config) { c.BatchSize = 0 }, config.ErrInvalidValue},
		{"negative min length", func(c *config.Config) { c.MinContentLength = -1 }, config.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = ai.ProviderLangChain
	cfg.EmbeddingHost = "http://localhost:11434"
	cfg.APIKey = ""
	cfg.Dimensions = 768

	aiCfg := cfg.AIConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://localhost:11434/v1", aiCfg.EmbeddingHost)

	sc := cfg.SchedulerConfig()
	assert.Equal(t, 768, sc.Dimensions)
	assert.Equal(t, cfg.BatchSize, sc.BatchSize)
	assert.Equal(t, cfg.Concurrency, sc.Concurrency)

	chunker, err := cfg.Chunker()
	require.NoError(t, err)
	assert.Equal(t, 1000, chunker.Size())
}
