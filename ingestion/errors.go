package ingestion

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrChunkerRequired is returned when WithChunker is given a nil chunker.
	ErrChunkerRequired = errors.New("chunker required")
)
