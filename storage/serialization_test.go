package storage

import (
	"testing"
	"time"

	"github.com/poiesic/kbembed/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalChunk(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name  string
		chunk *core.Chunk
	}{
		{
			name: "pending chunk",
			chunk: &core.Chunk{
				Id:          core.ID(1),
				DocTitle:    "Getting started",
				SourceURL:   "https://example.com/start",
				DocKey:      "https://example.com/start",
				RetrievedAt: now,
				ChunkIndex:  0,
				Content:     "Install the tool and run it.",
			},
		},
		{
			name: "embedded chunk",
			chunk: &core.Chunk{
				Id:          core.ID(99),
				DocTitle:    "Topic",
				DocKey:      "Topic",
				RetrievedAt: now,
				ChunkIndex:  12,
				Content:     "日本語 content",
				Embedding:   []float32{0.1, -0.2, 3.5, 0},
			},
		},
		{
			name: "empty but non-nil embedding",
			chunk: &core.Chunk{
				Id:          core.ID(3),
				DocKey:      "k",
				RetrievedAt: now,
				Embedding:   []float32{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalChunk(tt.chunk)
			decoded, err := UnmarshalChunk(data)
			require.NoError(t, err)
			assert.Equal(t, tt.chunk, decoded)
			assert.Equal(t, tt.chunk.Embedded(), decoded.Embedded(), "nil embedding stays nil")
		})
	}
}

func TestUnmarshalChunk_Invalid(t *testing.T) {
	chunk := &core.Chunk{
		Id:          core.ID(7),
		DocKey:      "doc",
		RetrievedAt: time.Now().UTC().Truncate(time.Microsecond),
		Content:     "some content",
		Embedding:   []float32{1, 2, 3, 4},
	}
	data := MarshalChunk(chunk)

	t.Run("empty data", func(t *testing.T) {
		_, err := UnmarshalChunk(nil)
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})

	t.Run("truncated embedding", func(t *testing.T) {
		_, err := UnmarshalChunk(data[:len(data)-6])
		assert.ErrorIs(t, err, ErrTruncatedData)
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := UnmarshalChunk(data[:3])
		assert.Error(t, err)
	})
}
