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
	"context"

	"github.com/poiesic/kbembed/core"
	"github.com/poiesic/kbembed/storage"
)

// PendingIterator pages through pending chunks in ID order.
//
// The cursor only moves forward, so a chunk that stays pending after a
// failed attempt is not offered again within the same iteration.
type PendingIterator struct {
	repo      storage.ChunkRepository
	batchSize int
}

// NewPendingIterator creates a new iterator.
// batchSize: number of chunks to fetch per page (must be > 0)
func NewPendingIterator(repo storage.ChunkRepository, batchSize int) *PendingIterator {
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}

	return &PendingIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn with successive pages of pending chunks.
// The next page is read only after fn returned, so writes made by fn are
// visible to the following query. Iteration stops on the first error from
// fn, when no pending chunks remain, or when ctx is done; cancellation is
// checked between pages.
func (it *PendingIterator) ForEach(ctx context.Context, fn func([]core.PendingChunk) error) error {
	var cursor core.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := it.repo.SelectPendingAfter(ctx, cursor, it.batchSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		cursor = page[len(page)-1].Id

		if err := fn(page); err != nil {
			return err
		}

		if len(page) < it.batchSize {
			return nil
		}
	}
}
