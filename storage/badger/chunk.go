package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbembed/core"
	"github.com/poiesic/kbembed/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
//
// Each chunk is stored under its ID. Two secondary indices are kept in the
// same transactions as the record: a pending index with one entry per
// chunk that has no embedding, and a (document, chunk index) index that
// enforces uniqueness.
type ChunkRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
	seqMu   sync.Mutex
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence. The backend is closed by its owner.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

func (r *ChunkRepository) nextID() (core.ID, error) {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()

	nextID, err := r.idSeq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		nextID, err = r.idSeq.Next()
		if err != nil {
			return 0, err
		}
	}
	return core.ID(nextID), nil
}

// InsertChunks stores new chunks with freshly assigned IDs.
//
// Uniqueness of every (document, chunk index) pair is checked before
// anything is written. A call too large for one badger transaction is
// written across several; if a later one fails, the chunks already written
// are removed again.
func (r *ChunkRepository) InsertChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	for _, chunk := range chunks {
		if err := core.ValidateNewChunk(chunk); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.checkUnique(chunks); err != nil {
		return nil, err
	}

	ids := make([]core.ID, len(chunks))
	for i := range chunks {
		id, err := r.nextID()
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	err := r.writeSplit(ctx, len(chunks),
		func(tx *badger.Txn, i int) error {
			return writeNewChunk(tx, chunks[i], ids[i])
		},
		func(tx *badger.Txn, i int) error {
			return deleteChunk(tx, chunks[i], ids[i])
		})
	if err != nil {
		return nil, wrapTxError(err)
	}
	for i, chunk := range chunks {
		chunk.Id = ids[i]
	}
	return chunks, nil
}

// checkUnique rejects chunks whose (document, index) pair is repeated within
// the call or already stored.
func (r *ChunkRepository) checkUnique(chunks []*core.Chunk) error {
	seen := make(map[string]bool, len(chunks))
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			docKey := makeDocKey(chunk.DocKey, chunk.ChunkIndex)
			_, err := tx.Get(docKey)
			if err == nil || seen[string(docKey)] {
				return fmt.Errorf("%w: %q chunk %d", storage.ErrDuplicateKey, chunk.DocKey, chunk.ChunkIndex)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			seen[string(docKey)] = true
		}
		return nil
	}, false)
}

// writeNewChunk writes the record, its pending entry and its document index
// entry. The index entry goes last, so a chunk cut off by a full
// transaction is simply written again under the same ID.
func writeNewChunk(tx *badger.Txn, chunk *core.Chunk, id core.ID) error {
	docKey := makeDocKey(chunk.DocKey, chunk.ChunkIndex)
	// Another writer may have claimed the pair after checkUnique; reading the
	// key also makes such a race a commit conflict.
	if _, err := tx.Get(docKey); err == nil {
		return fmt.Errorf("%w: %q chunk %d", storage.ErrDuplicateKey, chunk.DocKey, chunk.ChunkIndex)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	record := *chunk
	record.Id = id
	if err := tx.Set(makeChunkKey(id), storage.MarshalChunk(&record)); err != nil {
		return err
	}
	if err := tx.Set(makePendingKey(id), nil); err != nil {
		return err
	}
	return tx.Set(docKey, storage.MarshalID(id))
}

// deleteChunk removes what writeNewChunk wrote. The document index entry is
// only removed if it points at id.
func deleteChunk(tx *badger.Txn, chunk *core.Chunk, id core.ID) error {
	docKey := makeDocKey(chunk.DocKey, chunk.ChunkIndex)
	item, err := tx.Get(docKey)
	switch {
	case err == nil:
		var owner core.ID
		err := item.Value(func(val []byte) error {
			var unmarshalErr error
			owner, unmarshalErr = storage.UnmarshalID(val)
			return unmarshalErr
		})
		if err != nil {
			return err
		}
		if owner == id {
			if err := tx.Delete(docKey); err != nil {
				return err
			}
		}
	case !errors.Is(err, badger.ErrKeyNotFound):
		return err
	}

	if err := tx.Delete(makePendingKey(id)); err != nil {
		return err
	}
	return tx.Delete(makeChunkKey(id))
}

// writeSplit applies write to items 0..n-1 in order, spread over as many
// transactions as badger's size limit requires. When an item overflows a
// transaction, the items before it are committed and the item is written
// again in a fresh transaction, so write must tolerate running twice for
// the same item. If a transaction fails, undo is applied to every item
// committed so far, including one that was cut off, and the failure is
// returned.
func (r *ChunkRepository) writeSplit(ctx context.Context, n int, write, undo func(tx *badger.Txn, i int) error) error {
	committed := 0
	partial := false
	for committed < n {
		end := n
		err := r.backend.WithTransaction(ctx, func(ctx context.Context, tx *badger.Txn) error {
			end = n
			for i := committed; i < n; i++ {
				err := write(tx, i)
				if errors.Is(err, badger.ErrTxnTooBig) && i > committed {
					end = i
					return nil
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			written := committed
			if partial {
				written++
			}
			if written > 0 && undo != nil {
				r.backend.logger.Warn("reverting partial write", "written", written, "total", n, "err", err)
				if undoErr := r.writeSplit(context.WithoutCancel(ctx), written, undo, nil); undoErr != nil {
					return errors.Join(err, fmt.Errorf("reverting partial write: %w", undoErr))
				}
			}
			return err
		}
		partial = end < n
		if partial {
			r.backend.logger.Debug("transaction full, continuing in a new one", "written", end, "total", n)
		}
		committed = end
	}
	return nil
}

// SelectPending returns every pending chunk ordered by ID.
func (r *ChunkRepository) SelectPending(ctx context.Context) ([]core.PendingChunk, error) {
	return r.selectPending(ctx, 0, 0)
}

// SelectPendingAfter returns up to limit pending chunks with ID > afterID.
func (r *ChunkRepository) SelectPendingAfter(ctx context.Context, afterID core.ID, limit int) ([]core.PendingChunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", storage.ErrInvalidQuery, limit)
	}
	return r.selectPending(ctx, afterID, limit)
}

// selectPending walks the pending index from afterID+1. A limit of 0 means no limit.
func (r *ChunkRepository) selectPending(ctx context.Context, afterID core.ID, limit int) ([]core.PendingChunk, error) {
	pending := []core.PendingChunk{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(chunkPendingPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makePendingKey(afterID + 1)); iter.Valid(); iter.Next() {
			if limit > 0 && len(pending) >= limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			id := idFromPendingKey(iter.Item().Key())
			chunk, err := r.readChunk(tx, id)
			if err != nil {
				return err
			}
			if chunk == nil {
				return fmt.Errorf("pending index references missing chunk %d", id)
			}
			pending = append(pending, core.PendingChunk{Id: id, Content: chunk.Content})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// UpdateEmbedding sets the embedding of one chunk.
func (r *ChunkRepository) UpdateEmbedding(ctx context.Context, id core.ID, vector []float32) error {
	if err := core.ValidateVector(vector); err != nil {
		return err
	}
	err := r.backend.WithTransaction(ctx, func(ctx context.Context, tx *badger.Txn) error {
		_, found, err := r.writeEmbedding(tx, id, vector)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: chunk %d", storage.ErrNotFound, id)
		}
		return nil
	})
	return wrapTxError(err)
}

// UpdateEmbeddings writes all updates, splitting them over several
// transactions when they do not fit in one. On error every update already
// committed is reverted to the embedding it replaced.
func (r *ChunkRepository) UpdateEmbeddings(ctx context.Context, updates ...core.EmbeddingUpdate) ([]core.ID, error) {
	for _, u := range updates {
		if err := core.ValidateVector(u.Vector); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", u.Id, err)
		}
	}
	if len(updates) == 0 {
		return nil, nil
	}

	found := make([]bool, len(updates))
	previous := make([][]float32, len(updates))
	// An update cut off by a full transaction may already have replaced the
	// record, so only the first read of the old embedding counts.
	captured := make([]bool, len(updates))

	err := r.writeSplit(ctx, len(updates),
		func(tx *badger.Txn, i int) error {
			prev, ok, err := r.writeEmbedding(tx, updates[i].Id, updates[i].Vector)
			if !captured[i] {
				previous[i] = prev
				captured[i] = ok
			}
			found[i] = ok
			return err
		},
		func(tx *badger.Txn, i int) error {
			if !found[i] {
				return nil
			}
			return r.restoreEmbedding(tx, updates[i].Id, previous[i])
		})
	if err != nil {
		return nil, wrapTxError(err)
	}

	var missing []core.ID
	for i, u := range updates {
		if !found[i] {
			missing = append(missing, u.Id)
		}
	}
	return missing, nil
}

// writeEmbedding stores the vector and drops the pending index entry.
// It returns the embedding it replaced, and false if the chunk does not exist.
func (r *ChunkRepository) writeEmbedding(tx *badger.Txn, id core.ID, vector []float32) ([]float32, bool, error) {
	chunk, err := r.readChunk(tx, id)
	if err != nil {
		return nil, false, err
	}
	if chunk == nil {
		return nil, false, nil
	}
	previous := chunk.Embedding
	chunk.Embedding = vector
	if err := tx.Set(makeChunkKey(id), storage.MarshalChunk(chunk)); err != nil {
		return previous, true, err
	}
	if err := tx.Delete(makePendingKey(id)); err != nil {
		return previous, true, err
	}
	return previous, true, nil
}

// restoreEmbedding puts back a replaced embedding, re-adding the pending
// entry when there was none.
func (r *ChunkRepository) restoreEmbedding(tx *badger.Txn, id core.ID, previous []float32) error {
	chunk, err := r.readChunk(tx, id)
	if err != nil || chunk == nil {
		return err
	}
	chunk.Embedding = previous
	if err := tx.Set(makeChunkKey(id), storage.MarshalChunk(chunk)); err != nil {
		return err
	}
	if previous == nil {
		return tx.Set(makePendingKey(id), nil)
	}
	return nil
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		chunk, err = r.readChunk(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, fmt.Errorf("%w: chunk %d", storage.ErrNotFound, id)
	}
	return chunk, nil
}

// HasDocument reports whether any chunk of docKey is stored.
func (r *ChunkRepository) HasDocument(ctx context.Context, docKey string) (bool, error) {
	var found bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makePartialDocKey(docKey)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		iter.Rewind()
		found = iter.Valid()
		return nil
	}, false)
	return found, err
}

// Stats counts chunk records and pending index entries.
func (r *ChunkRepository) Stats(ctx context.Context) (core.Stats, error) {
	var total, pending int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		total = countPrefix(tx, []byte(chunkPrefix))
		pending = countPrefix(tx, []byte(chunkPendingPrefix))
		return nil
	}, false)
	if err != nil {
		return core.Stats{}, err
	}
	return core.Stats{Total: total, Embedded: total - pending}, nil
}

// EmbeddingDimension returns the length of the first stored embedding.
func (r *ChunkRepository) EmbeddingDimension(ctx context.Context) (int, error) {
	dim := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			id := idFromChunkKey(item.Key())
			if _, err := tx.Get(makePendingKey(id)); err == nil {
				continue
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			err := item.Value(func(val []byte) error {
				chunk, err := storage.UnmarshalChunk(val)
				if err != nil {
					return err
				}
				dim = len(chunk.Embedding)
				return nil
			})
			if err != nil {
				return err
			}
			return nil
		}
		return nil
	}, false)
	return dim, err
}

// readChunk loads a chunk inside tx. Returns nil, nil if it does not exist.
func (r *ChunkRepository) readChunk(tx *badger.Txn, id core.ID) (*core.Chunk, error) {
	item, err := tx.Get(makeChunkKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalChunk(val)
		return unmarshalErr
	})
	return chunk, err
}

func countPrefix(tx *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	count := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		count++
	}
	return count
}

// wrapTxError marks badger conflicts and closed databases with the storage sentinels.
func wrapTxError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	case errors.Is(err, badger.ErrDBClosed):
		return fmt.Errorf("%w: %w", storage.ErrStorageClosed, err)
	}
	return err
}
