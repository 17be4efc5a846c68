// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package kbembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/poiesic/kbembed/ai"
	"github.com/poiesic/kbembed/ai/gemini"
	"github.com/poiesic/kbembed/ai/langchain"
	"github.com/poiesic/kbembed/ai/openai"
	"github.com/poiesic/kbembed/config"
	"github.com/poiesic/kbembed/ingestion"
	"github.com/poiesic/kbembed/scheduler"
	"github.com/poiesic/kbembed/storage"
	"github.com/poiesic/kbembed/storage/badger"
	"github.com/poiesic/kbembed/storage/sqlite"
)

// ErrUnknownProvider is returned for an embedding provider name that is not supported.
var ErrUnknownProvider = errors.New("unknown embedding provider")

// Database ties a chunk store to an embedding provider.
// The provider is opened on first use, so commands that never embed do not
// need credentials.
type Database struct {
	config   *config.Config
	backend  *badger.Backend // nil unless the badger store is used
	repo     storage.ChunkRepository
	logger   *slog.Logger
	mu       sync.Mutex
	provider ai.AIProvider
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	provider ai.AIProvider
}

// WithProvider supplies an already opened embedding provider. The Database
// takes ownership and closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// Open opens the chunk store selected by cfg.
func Open(ctx context.Context, cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &databaseOptions{}
	for _, opt := range opts {
		opt(options)
	}

	db := &Database{
		config:   cfg,
		provider: options.provider,
		logger:   slog.Default().With("component", "database"),
	}

	switch cfg.Store {
	case config.StoreSQLite:
		repo, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		db.repo = repo
	default:
		backend, err := badger.OpenBackend(cfg.DBPath, false)
		if err != nil {
			return nil, err
		}
		repo, err := badger.NewChunkRepository(backend)
		if err != nil {
			backend.Close()
			return nil, err
		}
		db.backend = backend
		db.repo = repo
	}

	db.logger.Debug("opened chunk store", "store", cfg.Store, "path", cfg.DBPath)
	return db, nil
}

// NewProvider opens the embedding provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg *ai.Config) (ai.AIProvider, error) {
	cfg.Normalize()
	switch cfg.Provider {
	case ai.ProviderOpenAI:
		return openai.NewProvider(cfg)
	case ai.ProviderLangChain:
		return langchain.NewProvider(cfg)
	case ai.ProviderGemini:
		return gemini.NewProvider(ctx, cfg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}

// Config returns the configuration the Database was opened with.
func (db *Database) Config() *config.Config {
	return db.config
}

// Repository returns the chunk store.
func (db *Database) Repository() storage.ChunkRepository {
	return db.repo
}

// Provider returns the embedding provider, opening it on first use.
func (db *Database) Provider(ctx context.Context) (ai.AIProvider, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.provider != nil {
		return db.provider, nil
	}
	provider, err := NewProvider(ctx, db.config.AIConfig())
	if err != nil {
		return nil, err
	}
	db.provider = provider
	return provider, nil
}

// NewIngester creates an ingester using the configured chunker. Options
// passed here override the configured ones.
func (db *Database) NewIngester(opts ...ingestion.Option) (*ingestion.Ingester, error) {
	chunker, err := db.config.Chunker()
	if err != nil {
		return nil, err
	}
	base := []ingestion.Option{
		ingestion.WithChunker(chunker),
		ingestion.WithMinContentLength(db.config.MinContentLength),
	}
	return ingestion.NewIngester(db.repo, append(base, opts...)...)
}

// NewScheduler creates an embedding scheduler. A nil schedulerConfig means
// the one derived from the Database configuration.
// progress: where to write progress output (typically os.Stderr)
func (db *Database) NewScheduler(ctx context.Context, schedulerConfig *scheduler.Config, progress io.Writer) (*scheduler.Scheduler, error) {
	if schedulerConfig == nil {
		schedulerConfig = db.config.SchedulerConfig()
	}
	if err := schedulerConfig.Validate(); err != nil {
		return nil, err
	}
	provider, err := db.Provider(ctx)
	if err != nil {
		return nil, err
	}
	return scheduler.New(db.repo, provider.Embedder(), schedulerConfig, progress)
}

// Close closes the provider, the repository and the backing store.
func (db *Database) Close() error {
	db.mu.Lock()
	provider := db.provider
	db.provider = nil
	db.mu.Unlock()

	if provider != nil {
		if err := provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
		}
	}

	var errs []error
	if err := db.repo.Close(); err != nil {
		db.logger.Error("error closing chunk repository", "err", err)
		errs = append(errs, err)
	}

	if db.backend != nil {
		if err := db.backend.Close(); err != nil {
			db.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
