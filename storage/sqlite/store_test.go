package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/poiesic/kbembed/core"
	"github.com/poiesic/kbembed/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func docChunks(key string, contents ...string) []*core.Chunk {
	retrieved := time.Date(2025, 3, 1, 12, 30, 0, 123456000, time.UTC)
	chunks := make([]*core.Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = &core.Chunk{
			DocTitle:    "Title",
			SourceURL:   key,
			DocKey:      key,
			RetrievedAt: retrieved,
			ChunkIndex:  i,
			Content:     content,
		}
	}
	return chunks
}

func TestOpen_MigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chunks.db")
	repo, err := Open(context.Background(), path)
	require.NoError(t, err)
	_, err = repo.InsertChunks(context.Background(), docChunks("k", "x")...)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = Open(context.Background(), path)
	require.NoError(t, err, "reopening with no pending migrations succeeds")
	defer repo.Close()

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestInsertAndGet(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	stored, err := repo.InsertChunks(ctx, docChunks("https://a", "one", "two")...)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Greater(t, stored[1].Id, stored[0].Id)

	got, err := repo.GetChunk(ctx, stored[1].Id)
	require.NoError(t, err)
	assert.Equal(t, stored[1], got)

	_, err = repo.GetChunk(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsertChunks_DuplicateRollsBack(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	_, err := repo.InsertChunks(ctx, docChunks("https://a", "one")...)
	require.NoError(t, err)

	batch := append(docChunks("https://b", "fresh"), docChunks("https://a", "dup")...)
	_, err = repo.InsertChunks(ctx, batch...)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	has, err := repo.HasDocument(ctx, "https://b")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Zero(t, batch[0].Id, "IDs are only assigned on commit")
}

func TestSelectPending_NullVectorNull(t *testing.T) {
	repo := setupStore(t)
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

	page, err := repo.SelectPendingAfter(ctx, stored[0].Id, 10)
	require.NoError(t, err)
	assert.Equal(t, []core.PendingChunk{{Id: stored[2].Id, Content: "third"}}, page)

	_, err = repo.SelectPendingAfter(ctx, 0, -1)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestUpdateEmbeddings(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	stored, err := repo.InsertChunks(ctx, docChunks("https://a", "x", "y")...)
	require.NoError(t, err)

	missing, err := repo.UpdateEmbeddings(ctx,
		core.EmbeddingUpdate{Id: stored[0].Id, Vector: []float32{0.25, -1.5, 3}},
		core.EmbeddingUpdate{Id: 4242, Vector: []float32{1, 1, 1}},
	)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{4242}, missing)

	got, err := repo.GetChunk(ctx, stored[0].Id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -1.5, 3}, got.Embedding)

	dim, err := repo.EmbeddingDimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{Total: 2, Embedded: 1}, stats)

	err = repo.UpdateEmbedding(ctx, 4242, []float32{1})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateEmbeddings_RejectsNonFinite(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	stored, err := repo.InsertChunks(ctx, docChunks("https://a", "x")...)
	require.NoError(t, err)

	_, err = repo.UpdateEmbeddings(ctx, core.EmbeddingUpdate{Id: stored[0].Id, Vector: []float32{float32(math.Inf(1))}})
	assert.ErrorIs(t, err, core.ErrNonFiniteVector)
	assert.NotErrorIs(t, err, storage.ErrSerializationFailed)
}

func TestUpdateEmbedding_Concurrent(t *testing.T) {
	repo := setupStore(t)
	ctx := context.Background()

	contents := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	stored, err := repo.InsertChunks(ctx, docChunks("https://a", contents...)...)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i, chunk := range stored {
		wg.Add(1)
		go func(i int, id core.ID) {
			defer wg.Done()
			assert.NoError(t, repo.UpdateEmbedding(ctx, id, []float32{float32(i)}))
		}(i, chunk.Id)
	}
	wg.Wait()

	pending, err := repo.SelectPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEmbeddingDimension_Empty(t *testing.T) {
	repo := setupStore(t)
	dim, err := repo.EmbeddingDimension(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dim)
}

func TestUpdateEmbeddings_CommitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewWithDB(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chunks SET embedding = ? WHERE id = ?")).
		WithArgs("[0.5,1]", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	missing, err := store.UpdateEmbeddings(context.Background(),
		core.EmbeddingUpdate{Id: 7, Vector: []float32{0.5, 1}})
	assert.ErrorIs(t, err, storage.ErrTransactionFailed)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEmbeddings_ExecFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewWithDB(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chunks SET embedding = ? WHERE id = ?")).
		WithArgs("[1]", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chunks SET embedding = ? WHERE id = ?")).
		WithArgs("[2]", int64(2)).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err = store.UpdateEmbeddings(context.Background(),
		core.EmbeddingUpdate{Id: 1, Vector: []float32{1}},
		core.EmbeddingUpdate{Id: 2, Vector: []float32{2}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*), COUNT(embedding) FROM chunks")).
		WillReturnError(sqlmock.ErrCancelled)

	_, err = NewWithDB(db).Stats(context.Background())
	assert.ErrorIs(t, err, sqlmock.ErrCancelled)
}
