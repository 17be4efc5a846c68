// Package sqlite implements storage.ChunkRepository on a single SQLite table.
//
// Embeddings are stored as JSON arrays in a nullable TEXT column; a NULL
// embedding marks the chunk as pending. The schema is managed with
// golang-migrate from migrations embedded in the binary.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/poiesic/kbembed/core"
	"github.com/poiesic/kbembed/storage"
	"github.com/poiesic/kbembed/storage/sqlite/migrations"
)

const timeLayout = time.RFC3339Nano

// Store is a SQLite-backed chunk repository.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.ChunkRepository = (*Store)(nil)

// Open opens (creating if needed) the database file at path and applies
// pending migrations.
func Open(ctx context.Context, path string) (storage.ChunkRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes our own transactions.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already migrated database handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "sqlite-store"),
	}
}

// Migrate applies all pending schema migrations to db.
func Migrate(db *sql.DB) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source error: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	// m.Close would also close db, which the Store keeps using.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertChunks stores all chunks in one transaction.
func (s *Store) InsertChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	for _, chunk := range chunks {
		if err := core.ValidateNewChunk(chunk); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	ids := make([]core.ID, len(chunks))
	for i, chunk := range chunks {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (doc_title, source_url, doc_key, retrieved_at, chunk_index, content, embedding)
			 VALUES (?, ?, ?, ?, ?, ?, NULL)`,
			chunk.DocTitle, chunk.SourceURL, chunk.DocKey,
			chunk.RetrievedAt.UTC().Format(timeLayout), chunk.ChunkIndex, chunk.Content,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: %q chunk %d", storage.ErrDuplicateKey, chunk.DocKey, chunk.ChunkIndex)
			}
			return nil, fmt.Errorf("inserting chunk: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("inserting chunk: %w", err)
		}
		ids[i] = core.ID(id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	for i, chunk := range chunks {
		chunk.Id = ids[i]
	}
	return chunks, nil
}

// SelectPending returns every chunk without an embedding, ordered by ID.
func (s *Store) SelectPending(ctx context.Context) ([]core.PendingChunk, error) {
	return s.queryPending(ctx,
		`SELECT id, content FROM chunks WHERE embedding IS NULL ORDER BY id`)
}

// SelectPendingAfter returns up to limit pending chunks with ID > afterID.
func (s *Store) SelectPendingAfter(ctx context.Context, afterID core.ID, limit int) ([]core.PendingChunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", storage.ErrInvalidQuery, limit)
	}
	return s.queryPending(ctx,
		`SELECT id, content FROM chunks WHERE embedding IS NULL AND id > ? ORDER BY id LIMIT ?`,
		int64(afterID), limit)
}

func (s *Store) queryPending(ctx context.Context, query string, args ...any) ([]core.PendingChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting pending chunks: %w", err)
	}
	defer rows.Close()

	pending := []core.PendingChunk{}
	for rows.Next() {
		var (
			id      int64
			content string
		)
		if err := rows.Scan(&id, &content); err != nil {
			return nil, fmt.Errorf("scanning pending chunk: %w", err)
		}
		pending = append(pending, core.PendingChunk{Id: core.ID(id), Content: content})
	}
	return pending, rows.Err()
}

// UpdateEmbedding sets the embedding of a single chunk.
func (s *Store) UpdateEmbedding(ctx context.Context, id core.ID, vector []float32) error {
	encoded, err := encodeVector(vector)
	if err != nil {
		return err
	}
	found, err := updateOne(ctx, s.db, id, encoded)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: chunk %d", storage.ErrNotFound, id)
	}
	return nil
}

// UpdateEmbeddings writes all updates in one transaction.
func (s *Store) UpdateEmbeddings(ctx context.Context, updates ...core.EmbeddingUpdate) ([]core.ID, error) {
	encoded := make([]string, len(updates))
	for i, u := range updates {
		var err error
		if encoded[i], err = encodeVector(u.Vector); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", u.Id, err)
		}
	}
	if len(updates) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	var missing []core.ID
	for i, u := range updates {
		found, err := updateOne(ctx, tx, u.Id, encoded[i])
		if err != nil {
			return nil, err
		}
		if !found {
			missing = append(missing, u.Id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	if len(missing) > 0 {
		s.logger.Debug("embedding targets vanished", "missing", len(missing))
	}
	return missing, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateOne(ctx context.Context, db execer, id core.ID, encoded string) (bool, error) {
	res, err := db.ExecContext(ctx, `UPDATE chunks SET embedding = ? WHERE id = ?`, encoded, int64(id))
	if err != nil {
		return false, fmt.Errorf("updating embedding of chunk %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating embedding of chunk %d: %w", id, err)
	}
	return n > 0, nil
}

// GetChunk retrieves a single chunk by ID.
func (s *Store) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var (
		chunk     core.Chunk
		rawID     int64
		retrieved string
		embedding sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, doc_title, source_url, doc_key, retrieved_at, chunk_index, content, embedding
		 FROM chunks WHERE id = ?`, int64(id),
	).Scan(&rawID, &chunk.DocTitle, &chunk.SourceURL, &chunk.DocKey, &retrieved, &chunk.ChunkIndex, &chunk.Content, &embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chunk %d", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading chunk %d: %w", id, err)
	}

	chunk.Id = core.ID(rawID)
	if chunk.RetrievedAt, err = time.Parse(timeLayout, retrieved); err != nil {
		return nil, fmt.Errorf("%w: retrieved_at of chunk %d: %w", storage.ErrSerializationFailed, id, err)
	}
	if embedding.Valid {
		if err := json.Unmarshal([]byte(embedding.String), &chunk.Embedding); err != nil {
			return nil, fmt.Errorf("%w: embedding of chunk %d: %w", storage.ErrSerializationFailed, id, err)
		}
	}
	return &chunk, nil
}

// HasDocument reports whether any chunk of docKey is stored.
func (s *Store) HasDocument(ctx context.Context, docKey string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM chunks WHERE doc_key = ?)`, docKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking document: %w", err)
	}
	return exists, nil
}

// Stats counts stored and embedded chunks.
func (s *Store) Stats(ctx context.Context) (core.Stats, error) {
	var stats core.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(embedding) FROM chunks`,
	).Scan(&stats.Total, &stats.Embedded)
	if err != nil {
		return core.Stats{}, fmt.Errorf("counting chunks: %w", err)
	}
	return stats, nil
}

// EmbeddingDimension returns the length of the lowest-ID stored embedding.
func (s *Store) EmbeddingDimension(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx,
		`SELECT json_array_length(embedding) FROM chunks WHERE embedding IS NOT NULL ORDER BY id LIMIT 1`,
	).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading embedding dimension: %w", err)
	}
	return dim, nil
}

func encodeVector(vector []float32) (string, error) {
	if err := core.ValidateVector(vector); err != nil {
		return "", err
	}
	b, err := json.Marshal(vector)
	if err != nil {
		return "", fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
