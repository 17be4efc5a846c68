package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned before any work when a Config is unusable.
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrCommitFailed aborts a run when a batch's embeddings could not be committed.
	ErrCommitFailed = errors.New("committing embeddings failed")

	// ErrDimensionMismatch marks a vector whose width differs from the run's dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
