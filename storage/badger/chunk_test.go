package badger

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbembed/core"
	"github.com/poiesic/kbembed/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repo, backend, err := NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func docChunks(key string, contents ...string) []*core.Chunk {
	retrieved := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	chunks := make([]*core.Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = &core.Chunk{
			DocTitle:    "Title of " + key,
			SourceURL:   key,
			DocKey:      key,
			RetrievedAt: retrieved,
			ChunkIndex:  i,
			Content:     content,
		}
	}
	return chunks
}

func TestInsertChunks_AssignsIncreasingIDs(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	stored, err := repo.InsertChunks(ctx, docChunks("https://a", "one", "two", "three")...)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	for i := 1; i < len(stored); i++ {
		assert.Greater(t, stored[i].Id, stored[i-1].Id)
	}
	assert.NotZero(t, stored[0].Id)

	got, err := repo.GetChunk(ctx, stored[1].Id)
	require.NoError(t, err)
	assert.Equal(t, "two", got.Content)
	assert.Equal(t, 1, got.ChunkIndex)
	assert.Nil(t, got.Embedding)
	assert.True(t, stored[1].RetrievedAt.Equal(got.RetrievedAt))
}

func TestInsertChunks_Duplicate(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.InsertChunks(ctx, docChunks("https://a", "one", "two")...)
	require.NoError(t, err)

	_, err = repo.InsertChunks(ctx, docChunks("https://a", "again")...)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	t.Run("whole call rolls back", func(t *testing.T) {
		batch := append(docChunks("https://b", "fresh"), docChunks("https://a", "dup")...)
		_, err := repo.InsertChunks(ctx, batch...)
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)

		has, err := repo.HasDocument(ctx, "https://b")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("duplicate within one call", func(t *testing.T) {
		batch := append(docChunks("https://c", "x"), docChunks("https://c", "y")...)
		_, err := repo.InsertChunks(ctx, batch...)
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})
}

func TestInsertChunks_Validation(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	withEmbedding := docChunks("https://a", "x")
	withEmbedding[0].Embedding = []float32{1}
	_, err := repo.InsertChunks(ctx, withEmbedding...)
	assert.ErrorIs(t, err, core.ErrEmbeddingOnInsert)

	noKey := docChunks("", "x")
	_, err = repo.InsertChunks(ctx, noKey...)
	assert.ErrorIs(t, err, core.ErrMissingKey)
}

func TestSelectPending_NullVectorNull(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	stored, err := repo.InsertChunks(ctx, docChunks("https://a", "first", "second", "third")...)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateEmbedding(ctx, stored[1].Id, []float32{0.1, 0.2}))

	pending, err := repo.SelectPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.PendingChunk{
		{Id: stored[0].Id, Content: "first"},
		{Id: stored[2].Id, Content: "third"},
	}, pending)
}

func TestSelectPendingAfter_Pages(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	stored, err := repo.InsertChunks(ctx, docChunks("https://a", "a", "b", "c", "d", "e")...)
	require.NoError(t, err)

	page, err := repo.SelectPendingAfter(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, stored[0].Id, page[0].Id)
	assert.Equal(t, stored[1].Id, page[1].Id)

	page, err = repo.SelectPendingAfter(ctx, page[1].Id, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].Content)

	page, err = repo.SelectPendingAfter(ctx, stored[4].Id, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = repo.SelectPendingAfter(ctx, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestUpdateEmbedding(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	stored, err := repo.InsertChunks(ctx, docChunks("https://a", "x")...)
	require.NoError(t, err)

	err = repo.UpdateEmbedding(ctx, stored[0].Id+100, []float32{1})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = repo.UpdateEmbedding(ctx, stored[0].Id, nil)
	assert.ErrorIs(t, err, core.ErrEmptyVector)

	require.NoError(t, repo.UpdateEmbedding(ctx, stored[0].Id, []float32{1, 2, 3}))
	got, err := repo.GetChunk(ctx, stored[0].Id)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got.Embedding)

	dim, err := repo.EmbeddingDimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
}

func TestUpdateEmbedding_ConcurrentDisjointIDs(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	contents := make([]string, 20)
	for i := range contents {
		contents[i] = "chunk"
	}
	stored, err := repo.InsertChunks(ctx, docChunks("https://a", contents...)...)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, len(stored))
	for i, chunk := range stored {
		wg.Add(1)
		go func(i int, id core.ID) {
			defer wg.Done()
			errs[i] = repo.UpdateEmbedding(ctx, id, []float32{float32(i)})
		}(i, chunk.Id)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{Total: 20, Embedded: 20}, stats)
}

func TestUpdateEmbeddings_Batch(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	stored, err := repo.InsertChunks(ctx, docChunks("https://a", "x", "y")...)
	require.NoError(t, err)
	ghost := stored[1].Id + 1000

	missing, err := repo.UpdateEmbeddings(ctx,
		core.EmbeddingUpdate{Id: stored[0].Id, Vector: []float32{1, 0}},
		core.EmbeddingUpdate{Id: ghost, Vector: []float32{0, 1}},
		core.EmbeddingUpdate{Id: stored[1].Id, Vector: []float32{0, 1}},
	)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{ghost}, missing)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Embedded)
	assert.Equal(t, 0, stats.Pending())

	missing, err = repo.UpdateEmbeddings(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestHasDocumentAndStats(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	has, err := repo.HasDocument(ctx, "https://a")
	require.NoError(t, err)
	assert.False(t, has)

	dim, err := repo.EmbeddingDimension(ctx)
	require.NoError(t, err)
	assert.Zero(t, dim)

	_, err = repo.InsertChunks(ctx, docChunks("https://a", "x", "y", "z")...)
	require.NoError(t, err)

	has, err = repo.HasDocument(ctx, "https://a")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasDocument(ctx, "https://a/other")
	require.NoError(t, err)
	assert.False(t, has)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{Total: 3, Embedded: 0}, stats)
	assert.Equal(t, 3, stats.Pending())
}

func TestChunksSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	repo, err := NewChunkRepository(backend)
	require.NoError(t, err)

	stored, err := repo.InsertChunks(ctx, docChunks("https://a", "x", "y")...)
	require.NoError(t, err)
	missing, err := repo.UpdateEmbeddings(ctx, core.EmbeddingUpdate{Id: stored[0].Id, Vector: []float32{0.5}})
	require.NoError(t, err)
	require.Empty(t, missing)
	require.NoError(t, repo.Close())
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()
	repo, err = NewChunkRepository(backend)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetChunk(ctx, stored[0].Id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, got.Embedding)

	pending, err := repo.SelectPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, stored[1].Id, pending[0].Id)

	more, err := repo.InsertChunks(ctx, docChunks("https://b", "z")...)
	require.NoError(t, err)
	assert.Greater(t, more[0].Id, stored[1].Id, "IDs keep increasing across restarts")
}

// smallTxnRepo returns a repository whose transactions hold about 150 KB.
func smallTxnRepo(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repo, backend, err := NewMemoryRepository(WithMemTableSize(1 << 20))
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func sizedChunks(key string, n, size int) []*core.Chunk {
	contents := make([]string, n)
	for i := range contents {
		contents[i] = strings.Repeat("x", size)
	}
	return docChunks(key, contents...)
}

func filledVector(dim int, v float32) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = v
	}
	return vec
}

func TestInsertChunks_LargerThanOneTransaction(t *testing.T) {
	repo := smallTxnRepo(t)
	ctx := context.Background()

	stored, err := repo.InsertChunks(ctx, sizedChunks("https://big", 400, 1000)...)
	require.NoError(t, err)
	require.Len(t, stored, 400)
	for i := 1; i < len(stored); i++ {
		assert.Greater(t, stored[i].Id, stored[i-1].Id)
	}

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{Total: 400, Embedded: 0}, stats)

	pending, err := repo.SelectPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 400)

	got, err := repo.GetChunk(ctx, stored[399].Id)
	require.NoError(t, err)
	assert.Equal(t, 399, got.ChunkIndex)
	assert.Equal(t, stored[399].Id, got.Id)

	_, err = repo.InsertChunks(ctx, sizedChunks("https://big", 1, 10)...)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestInsertChunks_RevertsPartialWrite(t *testing.T) {
	repo := smallTxnRepo(t)
	ctx := context.Background()

	chunks := sizedChunks("https://big", 300, 1000)
	// A single record larger than any transaction fails after earlier ones committed.
	chunks[len(chunks)-1].Content = strings.Repeat("y", 200<<10)

	_, err := repo.InsertChunks(ctx, chunks...)
	assert.ErrorIs(t, err, badger.ErrTxnTooBig)
	for _, c := range chunks {
		assert.Zero(t, c.Id)
	}

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{}, stats)

	has, err := repo.HasDocument(ctx, "https://big")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = repo.InsertChunks(ctx, sizedChunks("https://big", 2, 10)...)
	assert.NoError(t, err)
}

func TestUpdateEmbeddings_LargerThanOneTransaction(t *testing.T) {
	repo := smallTxnRepo(t)
	ctx := context.Background()

	stored, err := repo.InsertChunks(ctx, sizedChunks("https://a", 300, 10)...)
	require.NoError(t, err)

	updates := make([]core.EmbeddingUpdate, len(stored))
	for i, c := range stored {
		updates[i] = core.EmbeddingUpdate{Id: c.Id, Vector: filledVector(256, float32(i))}
	}
	missing, err := repo.UpdateEmbeddings(ctx, updates...)
	require.NoError(t, err)
	assert.Empty(t, missing)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{Total: 300, Embedded: 300}, stats)

	got, err := repo.GetChunk(ctx, stored[299].Id)
	require.NoError(t, err)
	assert.Equal(t, filledVector(256, 299), got.Embedding)
}

func TestUpdateEmbeddings_RevertsPartialWrite(t *testing.T) {
	repo := smallTxnRepo(t)
	ctx := context.Background()

	stored, err := repo.InsertChunks(ctx, sizedChunks("https://a", 300, 10)...)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateEmbedding(ctx, stored[0].Id, []float32{7}))

	updates := make([]core.EmbeddingUpdate, len(stored))
	for i, c := range stored {
		updates[i] = core.EmbeddingUpdate{Id: c.Id, Vector: filledVector(256, 1)}
	}
	updates[len(updates)-1].Vector = filledVector(60_000, 1)

	_, err = repo.UpdateEmbeddings(ctx, updates...)
	assert.ErrorIs(t, err, badger.ErrTxnTooBig)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{Total: 300, Embedded: 1}, stats)

	got, err := repo.GetChunk(ctx, stored[0].Id)
	require.NoError(t, err)
	assert.Equal(t, []float32{7}, got.Embedding)

	got, err = repo.GetChunk(ctx, stored[1].Id)
	require.NoError(t, err)
	assert.Nil(t, got.Embedding)

	pending, err := repo.SelectPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 299)
}
