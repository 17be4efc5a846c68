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


package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/kbembed/ai"
	"github.com/poiesic/kbembed/core"
	"github.com/poiesic/kbembed/storage"
)

// Scheduler embeds every pending chunk of a store.
type Scheduler struct {
	repo     storage.ChunkRepository
	embedder ai.Embedder
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// New creates a scheduler. A nil config means DefaultConfig.
// progress: where to write progress output (typically os.Stderr); nil discards it
func New(repo storage.ChunkRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Scheduler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if repo == nil || embedder == nil {
		return nil, fmt.Errorf("%w: repository and embedder are required", ErrInvalidConfig)
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Scheduler{
		repo:     repo,
		embedder: embedder,
		config:   config,
		progress: progress,
		logger:   slog.Default().With("component", "scheduler"),
	}, nil
}

// Run embeds pending chunks batch by batch.
//
// Each chunk is attempted at most once per run. Per-chunk failures are
// collected in the report and leave the chunk pending for the next run.
// Run stops early, returning the partial report, when a commit fails
// (the error wraps ErrCommitFailed) or when ctx is canceled (checked
// between batches).
func (s *Scheduler) Run(ctx context.Context) (*Report, error) {
	startTime := time.Now()
	report := &Report{RunID: uuid.NewString()}
	logger := s.logger.With("run", report.RunID)

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to count pending chunks: %w", err)
	}
	if stats.Pending() == 0 {
		fmt.Fprintf(s.progress, "No pending chunks (%d embedded)\n", stats.Embedded)
		logger.Info("nothing to embed", "embedded", stats.Embedded)
		return report, nil
	}

	dimension := s.config.Dimensions
	if dimension == 0 {
		if dimension, err = s.repo.EmbeddingDimension(ctx); err != nil {
			return report, fmt.Errorf("failed to read stored embedding dimension: %w", err)
		}
	}

	pool, err := ants.NewPool(s.config.Concurrency)
	if err != nil {
		return report, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	processor := NewBatchProcessor(s.repo, s.embedder, pool, s.config, dimension)

	logger.Info("starting embedding run",
		"pending", stats.Pending(),
		"batchSize", s.config.BatchSize,
		"concurrency", s.config.Concurrency,
		"dimension", dimension)
	fmt.Fprintf(s.progress, "Embedding %d pending chunks (batch size: %d)\n",
		stats.Pending(), s.config.BatchSize)

	tracker := NewProgressTracker(s.progress, stats.Pending(), s.config.ReportInterval)
	tracker.Start()

	batch := 0
	err = NewPendingIterator(s.repo, s.config.BatchSize).ForEach(ctx, func(chunks []core.PendingChunk) error {
		batch++
		failedBefore := report.Failed
		if err := processor.Process(ctx, chunks, report); err != nil {
			return err
		}
		logger.Debug("batch committed",
			"batch", batch,
			"size", len(chunks),
			"failed", report.Failed-failedBefore)
		tracker.Increment(len(chunks), report.Failed-failedBefore)
		return nil
	})

	tracker.Finish()
	report.Elapsed = time.Since(startTime)

	if err != nil {
		logger.Error("embedding run stopped",
			"attempted", report.Attempted,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"error", err)
		return report, err
	}

	logger.Info("embedding run complete",
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}
