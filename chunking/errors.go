package chunking

import "errors"

var (
	// ErrInvalidConfig is returned when chunk size and overlap cannot produce
	// a forward-moving window.
	ErrInvalidConfig = errors.New("invalid chunking configuration")
)
