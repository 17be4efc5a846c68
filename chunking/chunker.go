package chunking

import (
	"fmt"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the default number of characters per chunk.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the default number of characters shared by
	// neighbouring chunks.
	DefaultChunkOverlap = 200
)

// Chunker splits normalized text into overlapping windows.
// A Chunker is immutable and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker with the given window size and overlap.
// Returns ErrInvalidConfig unless size > 0 and 0 <= overlap < size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap cannot be negative, got %d", ErrInvalidConfig, overlap)
	}
	if size-overlap < 1 {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// DefaultChunker returns a chunker using DefaultChunkSize and DefaultChunkOverlap.
func DefaultChunker() *Chunker {
	return &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
}

// Size returns the window width in characters.
func (c *Chunker) Size() int {
	return c.size
}

// Overlap returns the number of characters shared by consecutive windows.
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Split cuts text into windows of Size characters starting every
// Size-Overlap characters. Text that fits in one window is returned as the
// only chunk, even when empty.
func (c *Chunker) Split(text string) []string {
	n := utf8.RuneCountInString(text)
	if n <= c.size {
		return []string{text}
	}

	// Byte offset of every rune start, plus len(text) as the end sentinel.
	offsets := make([]int, 0, n+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))

	step := c.size - c.overlap
	chunks := make([]string, 0, (n+step-1)/step)
	for start := 0; start < n; start += step {
		end := min(start+c.size, n)
		chunks = append(chunks, text[offsets[start]:offsets[end]])
	}
	return chunks
}

// Split is a convenience wrapper that builds a Chunker and splits text once.
func Split(text string, size, overlap int) ([]string, error) {
	c, err := NewChunker(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Split(text), nil
}
