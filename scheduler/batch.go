package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/poiesic/kbembed/ai"
	"github.com/poiesic/kbembed/core"
	"github.com/poiesic/kbembed/storage"
)

// outcome is the result of embedding one chunk.
type outcome struct {
	id     core.ID
	vector []float32
	err    error
}

// BatchProcessor embeds one page of pending chunks and commits the results.
//
// Embedding calls fan out over a shared worker pool; the commit happens only
// after every call of the batch has returned. A failed chunk never aborts the
// batch: it is recorded in the report and stays pending.
type BatchProcessor struct {
	repo        storage.ChunkRepository
	embedder    ai.Embedder
	pool        *ants.Pool
	limiter     *rate.Limiter
	maxAttempts int
	retryDelay  time.Duration
	normalize   bool
	dimension   int
	logger      *slog.Logger
}

// NewBatchProcessor creates a batch processor running calls on pool.
// dimension is the expected vector width; 0 adopts the width of the first
// successful vector.
func NewBatchProcessor(repo storage.ChunkRepository, embedder ai.Embedder, pool *ants.Pool, config *Config, dimension int) *BatchProcessor {
	bp := &BatchProcessor{
		repo:        repo,
		embedder:    embedder,
		pool:        pool,
		maxAttempts: config.MaxRetries + 1,
		retryDelay:  config.RetryDelay,
		normalize:   config.NormalizeVectors,
		dimension:   dimension,
		logger:      slog.Default().With("component", "batch-processor"),
	}
	if config.RequestsPerSecond > 0 {
		bp.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	return bp
}

// Dimension returns the vector width the processor currently enforces.
func (bp *BatchProcessor) Dimension() int {
	return bp.dimension
}

// Process embeds chunks and writes the successful vectors in one commit.
// Per-chunk results are added to report. The returned error is non-nil only
// when the commit failed; it wraps ErrCommitFailed.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []core.PendingChunk, report *Report) error {
	if len(chunks) == 0 {
		return nil
	}
	report.Attempted += len(chunks)

	// Calls already started are allowed to finish and be committed even if
	// the run is canceled meanwhile.
	callCtx := context.WithoutCancel(ctx)

	outcomes := make([]outcome, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		err := bp.pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = bp.embed(callCtx, chunk)
		})
		if err != nil {
			wg.Done()
			outcomes[i] = outcome{id: chunk.Id, err: fmt.Errorf("submitting embedding task: %w", err)}
		}
	}
	wg.Wait()

	updates := make([]core.EmbeddingUpdate, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err == nil {
			o.err = bp.checkDimension(o.vector)
		}
		if o.err != nil {
			bp.logger.Debug("chunk failed", "id", o.id, "error", o.err)
			report.addFailure(o.id, o.err)
			continue
		}
		vector := o.vector
		if bp.normalize {
			vector = NormalizeVector(vector)
		}
		updates = append(updates, core.EmbeddingUpdate{Id: o.id, Vector: vector})
	}

	return bp.commit(callCtx, updates, report)
}

// embed calls the embedder for one chunk, retrying rate-limited calls.
func (bp *BatchProcessor) embed(ctx context.Context, chunk core.PendingChunk) outcome {
	var vector []float32
	err := RetryWithBackoff(ctx, func() error {
		if bp.limiter != nil {
			if err := bp.limiter.Wait(ctx); err != nil {
				return ai.NewTransportError(err)
			}
		}
		v, err := bp.embedder.EmbedText(ctx, chunk.Content)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return ai.NewProviderError(0, ai.ErrEmptyEmbedding)
		}
		if err := core.ValidateVector(v); err != nil {
			return ai.NewProviderError(0, err)
		}
		vector = v
		return nil
	}, ai.IsRetryable, bp.maxAttempts, bp.retryDelay)
	return outcome{id: chunk.Id, vector: vector, err: err}
}

// checkDimension compares v against the enforced width, adopting the width
// of v if none is known yet. Batch outcomes are checked in chunk ID order, so
// the adopted width is that of the lowest successful ID.
func (bp *BatchProcessor) checkDimension(v []float32) error {
	if bp.dimension == 0 {
		bp.dimension = len(v)
		bp.logger.Debug("adopted embedding dimension", "dimension", bp.dimension)
		return nil
	}
	if len(v) != bp.dimension {
		bp.logger.Warn("embedding dimension mismatch", "expected", bp.dimension, "got", len(v))
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, bp.dimension, len(v))
	}
	return nil
}

func (bp *BatchProcessor) commit(ctx context.Context, updates []core.EmbeddingUpdate, report *Report) error {
	if len(updates) == 0 {
		return nil
	}

	missing, err := bp.repo.UpdateEmbeddings(ctx, updates...)
	if err != nil {
		commitErr := fmt.Errorf("%w: %w", ErrCommitFailed, err)
		for _, u := range updates {
			report.addFailure(u.Id, commitErr)
		}
		return commitErr
	}

	gone := make(map[core.ID]bool, len(missing))
	for _, id := range missing {
		gone[id] = true
		report.addFailure(id, fmt.Errorf("%w: chunk %d", storage.ErrNotFound, id))
	}
	if len(missing) > 0 {
		bp.logger.Warn("chunks vanished before write-back", "count", len(missing))
	}
	report.Succeeded += len(updates) - len(gone)
	return nil
}
