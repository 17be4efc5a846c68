package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Chunk IDs come from storage sequences; document keys are content-hashed.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Document is a raw document handed over by a document source.
// Documents are not persisted; only their chunks are.
type Document struct {
	Title       string
	SourceURL   string
	RawText     string
	RetrievedAt time.Time
}

// Key returns the identity of the document used for de-duplication.
// The source URL wins; documents without one fall back to their title.
func (d *Document) Key() string {
	if d.SourceURL != "" {
		return d.SourceURL
	}
	return d.Title
}

// Chunk is a bounded window of a document's normalized text.
type Chunk struct {
	Id          ID
	DocTitle    string
	SourceURL   string
	DocKey      string    // Document.Key() of the owning document
	RetrievedAt time.Time // When the owning document was retrieved
	ChunkIndex  int       // Zero-based position within the owning document
	Content     string
	Embedding   []float32 // nil until embedded
}

// Embedded reports whether the chunk carries an embedding.
func (c *Chunk) Embedded() bool {
	return c.Embedding != nil
}

// PendingChunk is the projection of a chunk the embedding scheduler works on.
type PendingChunk struct {
	Id      ID
	Content string
}

// EmbeddingUpdate stages a vector for write-back to a chunk.
type EmbeddingUpdate struct {
	Id     ID
	Vector []float32
}

// Stats summarizes the embedding state of a chunk store.
type Stats struct {
	Total    int
	Embedded int
}

// Pending returns the number of chunks without an embedding.
func (s Stats) Pending() int {
	return s.Total - s.Embedded
}
