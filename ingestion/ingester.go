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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/kbembed/chunking"
	"github.com/poiesic/kbembed/core"
	"github.com/poiesic/kbembed/storage"
)

// DefaultMinContentLength is the shortest normalized text, in characters,
// that is worth storing.
const DefaultMinContentLength = 20

// SkipReason explains why a document produced no chunks.
type SkipReason string

const (
	SkipInvalid  SkipReason = "invalid"
	SkipTooShort SkipReason = "too_short"
	SkipExisting SkipReason = "existing"
)

// SkippedDocument records a document that was not ingested.
type SkippedDocument struct {
	Key    string
	Reason SkipReason
	Detail string
}

// IngestReport summarizes one Ingest call.
type IngestReport struct {
	Documents int // documents offered
	Ingested  int // documents whose chunks were inserted
	Chunks    int // chunks inserted
	Skipped   []SkippedDocument
}

// Ingester chunks documents into a chunk repository.
type Ingester struct {
	repo             storage.ChunkRepository
	chunker          *chunking.Chunker
	minContentLength int
	skipExisting     bool
	pool             *ants.Pool
	clock            func() time.Time
	logger           *slog.Logger
}

// Option configures an Ingester.
type Option func(*Ingester) error

// WithChunker sets the chunker. Default is chunking.DefaultChunker().
func WithChunker(chunker *chunking.Chunker) Option {
	return func(i *Ingester) error {
		if chunker == nil {
			return ErrChunkerRequired
		}
		i.chunker = chunker
		return nil
	}
}

// WithMinContentLength sets the minimum normalized length of a document.
// Shorter documents are skipped. Default is DefaultMinContentLength.
func WithMinContentLength(n int) Option {
	return func(i *Ingester) error {
		if n < 0 {
			n = 0
		}
		i.minContentLength = n
		return nil
	}
}

// WithSkipExisting controls whether documents whose key already has chunks
// are skipped. Default is true. When disabled, re-ingesting a document
// fails with storage.ErrDuplicateKey, which is reported as a skip.
func WithSkipExisting(skip bool) Option {
	return func(i *Ingester) error {
		i.skipExisting = skip
		return nil
	}
}

// WithPoolSize sets the number of documents prepared concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(i *Ingester) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if i.pool != nil {
			i.pool.Release()
		}
		i.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger.With("component", "ingester")
		return nil
	}
}

// WithClock sets the time source used for documents without a retrieval time.
func WithClock(clock func() time.Time) Option {
	return func(i *Ingester) error {
		if clock != nil {
			i.clock = clock
		}
		return nil
	}
}

// NewIngester creates an ingester writing to repo.
func NewIngester(repo storage.ChunkRepository, opts ...Option) (*Ingester, error) {
	if repo == nil {
		return nil, ErrChunkRepositoryRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	i := &Ingester{
		repo:             repo,
		chunker:          chunking.DefaultChunker(),
		minContentLength: DefaultMinContentLength,
		skipExisting:     true,
		pool:             pool,
		clock:            time.Now,
		logger:           slog.Default().With("component", "ingester"),
	}

	for _, opt := range opts {
		if optErr := opt(i); optErr != nil {
			i.Release()
			return nil, optErr
		}
	}

	return i, nil
}

// Release releases the worker pool.
func (i *Ingester) Release() {
	if i.pool != nil {
		i.pool.Release()
		i.pool = nil
	}
}

// prepared is a document ready for insertion, or the reason it is skipped.
type prepared struct {
	key    string
	chunks []*core.Chunk
	skip   *SkippedDocument
}

// Ingest stores the chunks of docs. Documents are prepared concurrently
// and inserted in input order, so chunk IDs follow the order of docs.
// Skipped documents are listed in the report. A storage failure stops the
// call; the report then covers the documents inserted so far.
func (i *Ingester) Ingest(ctx context.Context, docs ...*core.Document) (*IngestReport, error) {
	report := &IngestReport{Documents: len(docs)}
	if len(docs) == 0 {
		return report, nil
	}

	now := i.clock().UTC()
	results := make([]prepared, len(docs))
	var wg sync.WaitGroup
	for n, doc := range docs {
		wg.Add(1)
		err := i.pool.Submit(func() {
			defer wg.Done()
			results[n] = i.prepare(doc, now)
		})
		if err != nil {
			wg.Done()
			results[n] = i.prepare(doc, now)
		}
	}
	wg.Wait()

	for _, p := range results {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if p.skip != nil {
			i.skipped(report, *p.skip)
			continue
		}

		if i.skipExisting {
			exists, err := i.repo.HasDocument(ctx, p.key)
			if err != nil {
				return report, fmt.Errorf("failed to check document %q: %w", p.key, err)
			}
			if exists {
				i.skipped(report, SkippedDocument{Key: p.key, Reason: SkipExisting})
				continue
			}
		}

		if _, err := i.repo.InsertChunks(ctx, p.chunks...); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				i.skipped(report, SkippedDocument{Key: p.key, Reason: SkipExisting, Detail: err.Error()})
				continue
			}
			return report, fmt.Errorf("failed to insert chunks of %q: %w", p.key, err)
		}

		report.Ingested++
		report.Chunks += len(p.chunks)
		i.logger.Debug("document ingested", "key", p.key, "chunks", len(p.chunks))
	}

	i.logger.Info("ingestion complete",
		"documents", report.Documents,
		"ingested", report.Ingested,
		"skipped", len(report.Skipped),
		"chunks", report.Chunks)
	return report, nil
}

func (i *Ingester) prepare(doc *core.Document, now time.Time) prepared {
	if err := core.ValidateDocument(doc); err != nil {
		key := ""
		if doc != nil {
			key = doc.Key()
		}
		return prepared{skip: &SkippedDocument{Key: key, Reason: SkipInvalid, Detail: err.Error()}}
	}

	key := doc.Key()
	text := chunking.Normalize(doc.RawText)
	if n := utf8.RuneCountInString(text); n < i.minContentLength {
		return prepared{skip: &SkippedDocument{
			Key:    key,
			Reason: SkipTooShort,
			Detail: fmt.Sprintf("%d characters", n),
		}}
	}

	retrievedAt := doc.RetrievedAt
	if retrievedAt.IsZero() {
		retrievedAt = now
	}

	windows := i.chunker.Split(text)
	chunks := make([]*core.Chunk, len(windows))
	for n, content := range windows {
		chunks[n] = &core.Chunk{
			DocTitle:    doc.Title,
			SourceURL:   doc.SourceURL,
			DocKey:      key,
			RetrievedAt: retrievedAt,
			ChunkIndex:  n,
			Content:     content,
		}
	}
	return prepared{key: key, chunks: chunks}
}

func (i *Ingester) skipped(report *IngestReport, doc SkippedDocument) {
	report.Skipped = append(report.Skipped, doc)
	i.logger.Debug("document skipped", "key", doc.Key, "reason", doc.Reason, "detail", doc.Detail)
}
