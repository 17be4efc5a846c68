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


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/kbembed/core"
)

// Chunk records are encoded field by field in declaration order:
//
//	id varint | title | url | key | retrievedAt varint(unix micro) |
//	index varint | content | hasEmbedding bool | [len varint | float32...]
//
// Strings use mus-go's length-prefixed ord encoding.

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: id: %w", ErrSerializationFailed, err)
	}
	return core.ID(v), nil
}

func chunkSize(c *core.Chunk) int {
	size := varint.Uint64.Size(uint64(c.Id)) +
		ord.String.Size(c.DocTitle) +
		ord.String.Size(c.SourceURL) +
		ord.String.Size(c.DocKey) +
		varint.Int64.Size(c.RetrievedAt.UnixMicro()) +
		varint.Int64.Size(int64(c.ChunkIndex)) +
		ord.String.Size(c.Content) +
		ord.Bool.Size(c.Embedding != nil)
	if c.Embedding != nil {
		size += varint.Uint64.Size(uint64(len(c.Embedding)))
		for _, f := range c.Embedding {
			size += raw.Float32.Size(f)
		}
	}
	return size
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(c *core.Chunk) []byte {
	buf := make([]byte, chunkSize(c))
	n := varint.Uint64.Marshal(uint64(c.Id), buf)
	n += ord.String.Marshal(c.DocTitle, buf[n:])
	n += ord.String.Marshal(c.SourceURL, buf[n:])
	n += ord.String.Marshal(c.DocKey, buf[n:])
	n += varint.Int64.Marshal(c.RetrievedAt.UnixMicro(), buf[n:])
	n += varint.Int64.Marshal(int64(c.ChunkIndex), buf[n:])
	n += ord.String.Marshal(c.Content, buf[n:])
	n += ord.Bool.Marshal(c.Embedding != nil, buf[n:])
	if c.Embedding != nil {
		n += varint.Uint64.Marshal(uint64(len(c.Embedding)), buf[n:])
		for _, f := range c.Embedding {
			n += raw.Float32.Marshal(f, buf[n:])
		}
	}
	return buf
}

// chunkReader threads the offset and first error through sequential reads.
type chunkReader struct {
	data []byte
	n    int
	err  error
}

func (r *chunkReader) string() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.data[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *chunkReader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.data[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *chunkReader) int64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.data[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *chunkReader) bool() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.data[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *chunkReader) float32() float32 {
	if r.err != nil {
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(r.data[r.n:])
	r.n += n
	r.err = err
	return v
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	r := &chunkReader{data: data}
	c := &core.Chunk{
		Id:        core.ID(r.uint64()),
		DocTitle:  r.string(),
		SourceURL: r.string(),
		DocKey:    r.string(),
	}
	c.RetrievedAt = time.UnixMicro(r.int64()).UTC()
	c.ChunkIndex = int(r.int64())
	c.Content = r.string()
	if r.bool() {
		length := r.uint64()
		if r.err == nil && length > uint64(len(data)-r.n)/4 {
			return nil, fmt.Errorf("%w: embedding of %d floats in %d bytes", ErrTruncatedData, length, len(data)-r.n)
		}
		c.Embedding = make([]float32, length)
		for i := range c.Embedding {
			c.Embedding[i] = r.float32()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: chunk: %w", ErrSerializationFailed, r.err)
	}
	return c, nil
}
