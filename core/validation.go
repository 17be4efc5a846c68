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


package core

import (
	"fmt"
	"math"
	"time"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Key() must not be empty (source URL or title)
//   - RetrievedAt must not be in the future
//
// NOT validated:
//   - RawText (empty or short documents are filtered by the ingester)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.Key() == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrMissingKey)
	}

	if !IsValidTimestamp(doc.RetrievedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateNewChunk validates a Chunk that is about to be inserted.
//
// Validation rules:
//   - DocKey must not be empty
//   - ChunkIndex must be >= 0
//   - Embedding must be nil (chunks start pending)
//
// Content may be empty: a document of only whitespace still yields one chunk.
func ValidateNewChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.DocKey == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrMissingKey)
	}

	if chunk.ChunkIndex < 0 {
		return fmt.Errorf("%w: %w: %d", ErrInvalidChunk, ErrNegativeIndex, chunk.ChunkIndex)
	}

	if chunk.Embedding != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmbeddingOnInsert)
	}

	return nil
}

// ValidateVector checks that an embedding vector can be stored.
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrNonFiniteVector, i, v)
		}
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
