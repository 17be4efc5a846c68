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
	"fmt"
	"time"
)

// Config holds configuration for an embedding run.
// A Config is read-only once a Scheduler has been created from it.
type Config struct {
	// BatchSize is the number of pending chunks fetched, embedded and
	// committed together.
	BatchSize int

	// Concurrency bounds the embedding calls in flight within one batch.
	Concurrency int

	// MaxRetries is the number of additional attempts for a chunk whose
	// call was rate limited. Other failures are never retried.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// RequestsPerSecond paces embedding calls across all workers.
	// Zero disables pacing.
	RequestsPerSecond float64

	// Dimensions is the expected vector width. Zero means: take it from
	// already stored embeddings, or from the first vector of the run.
	Dimensions int

	// NormalizeVectors scales vectors to unit length before storing them.
	NormalizeVectors bool

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      50,
		Concurrency:    8,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		ReportInterval: 50,
	}
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidConfig, c.Concurrency)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries cannot be negative, got %d", ErrInvalidConfig, c.MaxRetries)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay cannot be negative, got %v", ErrInvalidConfig, c.RetryDelay)
	case c.RequestsPerSecond < 0:
		return fmt.Errorf("%w: requests per second cannot be negative, got %v", ErrInvalidConfig, c.RequestsPerSecond)
	case c.Dimensions < 0:
		return fmt.Errorf("%w: dimensions cannot be negative, got %d", ErrInvalidConfig, c.Dimensions)
	case c.ReportInterval < 0:
		return fmt.Errorf("%w: report interval cannot be negative, got %d", ErrInvalidConfig, c.ReportInterval)
	}
	return nil
}
