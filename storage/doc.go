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


// Package storage provides the storage abstraction layer for kbembed.
//
// This package defines the ChunkRepository interface that decouples the chunk
// store from ingestion and the embedding scheduler, plus the shared error
// values and the binary chunk codec used by key-value backends.
//
// # Backends
//
//   - storage/badger: embedded BadgerDB store (default)
//   - storage/sqlite: a single chunks table in SQLite, embeddings as JSON
//
// Public constructors return the ChunkRepository interface:
//
//	repo, err := badger.NewChunkRepository(backend)
//	repo, err := sqlite.Open(ctx, "/path/to/chunks.db")
//
// # Usage
//
//	stored, err := repo.InsertChunks(ctx, chunks...)
//	pending, err := repo.SelectPendingAfter(ctx, 0, 32)
//	missing, err := repo.UpdateEmbeddings(ctx, updates...)
//
// Use in tests with in-memory storage:
//
//	repo, backend, err := badger.NewMemoryRepository()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
