package storage

import (
	"context"

	"github.com/poiesic/kbembed/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close closes the storage backend and releases resources.
	Close() error
}

// ChunkRepository persists chunks and their embeddings.
//
// A chunk is pending while its embedding is nil. Pending state is derived
// from the stored data alone, so a run that dies midway resumes by simply
// selecting pending chunks again.
type ChunkRepository interface {
	Repository

	// InsertChunks stores new chunks as one unit: all of them or none.
	// IDs are assigned from a monotonic sequence and written back into the
	// returned chunks. Chunks must not carry an embedding.
	// Returns ErrDuplicateKey if any (DocKey, ChunkIndex) pair already exists,
	// in which case nothing is stored.
	InsertChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// SelectPending returns every chunk without an embedding, ordered by ID.
	SelectPending(ctx context.Context) ([]core.PendingChunk, error)

	// SelectPendingAfter returns up to limit pending chunks with ID > afterID,
	// ordered by ID. A limit <= 0 returns ErrInvalidQuery.
	SelectPendingAfter(ctx context.Context, afterID core.ID, limit int) ([]core.PendingChunk, error)

	// UpdateEmbedding sets the embedding of a single chunk.
	// Returns ErrNotFound if the chunk does not exist.
	// Safe for concurrent calls on disjoint IDs.
	UpdateEmbedding(ctx context.Context, id core.ID, vector []float32) error

	// UpdateEmbeddings writes a batch of embeddings as one unit.
	// Updates whose chunk no longer exists are skipped and reported in missing.
	// A non-nil error means nothing was committed.
	UpdateEmbeddings(ctx context.Context, updates ...core.EmbeddingUpdate) (missing []core.ID, err error)

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// HasDocument reports whether any chunk belongs to the document key.
	HasDocument(ctx context.Context, docKey string) (bool, error)

	// Stats counts stored and embedded chunks.
	Stats(ctx context.Context) (core.Stats, error)

	// EmbeddingDimension returns the length of a stored embedding,
	// or 0 if nothing has been embedded yet.
	EmbeddingDimension(ctx context.Context) (int, error)
}
