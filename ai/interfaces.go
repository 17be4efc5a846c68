package ai

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string with
	// exactly one call to the embedding service. Implementations do not retry.
	//
	// Failures are returned as *EmbedError so callers can tell transport
	// problems, rate limiting and provider rejections apart:
	//
	//	errors.Is(err, ai.ErrRateLimit)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
