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

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrMissingKey indicates a document has neither a source URL nor a title.
	ErrMissingKey = errors.New("document needs a source url or a title")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")

	// ErrNegativeIndex indicates a chunk index below zero.
	ErrNegativeIndex = errors.New("chunk index cannot be negative")

	// ErrEmbeddingOnInsert indicates a chunk was inserted with an embedding already set.
	ErrEmbeddingOnInsert = errors.New("new chunks cannot carry an embedding")

	// ErrEmptyVector indicates an embedding without any components.
	ErrEmptyVector = errors.New("embedding vector cannot be empty")

	// ErrNonFiniteVector indicates an embedding with a NaN or infinite component.
	ErrNonFiniteVector = errors.New("embedding vector has non-finite components")
)
