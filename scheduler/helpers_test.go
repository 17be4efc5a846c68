package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/kbembed/core"
	"github.com/poiesic/kbembed/storage"
	"github.com/poiesic/kbembed/storage/badger"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (storage.ChunkRepository, func()) {
	backend, err := badger.OpenBackend("", true) // in-memory
	require.NoError(t, err)

	repo, err := badger.NewChunkRepository(backend)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		backend.Close()
	}

	return repo, cleanup
}

// setupSmallTxnDB is setupTestDB with transactions limited to about 150 KB.
func setupSmallTxnDB(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repo, backend, err := badger.NewMemoryRepository(badger.WithMemTableSize(1 << 20))
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

// seedChunks stores n chunks of one document with contents "chunk 0".."chunk n-1".
func seedChunks(t *testing.T, repo storage.ChunkRepository, docKey string, n int) []*core.Chunk {
	t.Helper()
	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		chunks[i] = &core.Chunk{
			DocTitle:    "Doc " + docKey,
			SourceURL:   docKey,
			DocKey:      docKey,
			RetrievedAt: time.Now().UTC().Add(-time.Minute),
			ChunkIndex:  i,
			Content:     fmt.Sprintf("chunk %d", i),
		}
	}
	stored, err := repo.InsertChunks(context.Background(), chunks...)
	require.NoError(t, err)
	return stored
}
