package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	defaultSequenceBandwidth = 100

	// conflictAttempts bounds how often a write transaction is re-run after
	// badger reports a read-write conflict on commit.
	conflictAttempts = 3
)

// Backend owns the BadgerDB instance shared by the repositories.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// slogAdapter routes badger's printf-style logging into slog.
type slogAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) log(level slog.Level, format string, args []any) {
	a.logger.Log(context.Background(), level, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a *slogAdapter) Errorf(format string, args ...any)   { a.log(slog.LevelError, format, args) }
func (a *slogAdapter) Warningf(format string, args ...any) { a.log(slog.LevelWarn, format, args) }
func (a *slogAdapter) Debugf(format string, args ...any)   { a.log(slog.LevelDebug, format, args) }

// Infof logs at debug: compaction and value log chatter is not useful at info.
func (a *slogAdapter) Infof(format string, args ...any) { a.log(slog.LevelDebug, format, args) }

// BackendOption adjusts the badger options before the database is opened.
type BackendOption func(*badger.Options)

// WithSyncWrites controls whether every commit is fsynced. Default is true,
// so committed embeddings survive a crash of the machine, not only of the
// process.
func WithSyncWrites(sync bool) BackendOption {
	return func(o *badger.Options) {
		o.SyncWrites = sync
	}
}

// WithMemTableSize sets the memtable size, which also bounds how much a
// single transaction may write (15% of it).
func WithMemTableSize(size int64) BackendOption {
	return func(o *badger.Options) {
		o.MemTableSize = size
		// badger refuses to open when the value threshold exceeds the transaction limit.
		if limit := size * 15 / 100; o.ValueThreshold > limit {
			o.ValueThreshold = limit / 2
		}
	}
}

// OpenBackend opens the database directory at filePath, creating it if
// needed. With inMemory set, filePath is ignored and nothing touches disk.
func OpenBackend(filePath string, inMemory bool, opts ...BackendOption) (*Backend, error) {
	var badgerOpts badger.Options
	if inMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(filePath, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		badgerOpts = badger.DefaultOptions(filePath).WithSyncWrites(true)
	}

	logger := slog.Default().With("component", "badger")
	badgerOpts.Logger = &slogAdapter{logger: logger}
	// Records are small and mostly float32 vectors, which do not compress.
	badgerOpts.Compression = options.None
	for _, opt := range opts {
		opt(&badgerOpts)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened badger database", "path", filePath, "inMemory", inMemory, "syncWrites", badgerOpts.SyncWrites)

	return &Backend{db: db, logger: logger}, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed reports whether Close has been called.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx runs fn in a transaction that is always discarded afterwards.
// Write transactions must be committed by fn; see WithTransaction.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// WithTransaction runs fn in a read-write transaction and commits it when
// fn returns nil. On a commit conflict fn is run again on a fresh
// transaction, up to conflictAttempts times, so fn must not keep state
// across runs.
func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= conflictAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = b.WithTx(func(tx *badger.Txn) error {
			if err := fn(ctx, tx); err != nil {
				return err
			}
			return tx.Commit()
		}, true)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		b.logger.Debug("transaction conflict", "attempt", attempt)
	}
	return err
}

// GetSequence returns the named ID sequence.
func (b *Backend) GetSequence(name string) (*badger.Sequence, error) {
	return b.db.GetSequence([]byte(name), defaultSequenceBandwidth)
}
