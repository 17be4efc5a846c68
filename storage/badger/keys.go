package badger

import (
	"encoding/binary"

	"github.com/poiesic/kbembed/core"
)

// Key prefixes for different data types
const (
	chunkPrefix        = "chunk:"
	chunkPendingPrefix = "chunkpend:"
	chunkDocPrefix     = "chunkdoc:"
	chunkIDSeq         = "chunkseq"
)

// appendID writes id in BigEndian order so lexicographic sort matches numeric order.
func appendID(buf []byte, id uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, id)
}

// makeChunkKey generates a key for a chunk record by ID.
// Format: prefix id
func makeChunkKey(id core.ID) []byte {
	return appendID([]byte(chunkPrefix), uint64(id))
}

// makePendingKey generates a key for the pending index.
// The entry exists exactly while the chunk has no embedding.
func makePendingKey(id core.ID) []byte {
	return appendID([]byte(chunkPendingPrefix), uint64(id))
}

// idFromPendingKey extracts the chunk ID from a pending index key.
func idFromPendingKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(chunkPendingPrefix):]))
}

// makePartialDocKey generates the prefix shared by all chunks of a document.
// Document keys are hashed to a fixed width so that arbitrary URLs cannot
// collide with the index suffix.
// Format: prefix hash(docKey)
func makePartialDocKey(docKey string) []byte {
	return appendID([]byte(chunkDocPrefix), uint64(core.IDFromContent(docKey)))
}

// makeDocKey generates a composite key for the (document, chunk index) uniqueness index.
// Format: prefix hash(docKey) index
func makeDocKey(docKey string, chunkIndex int) []byte {
	return appendID(makePartialDocKey(docKey), uint64(chunkIndex))
}

// idFromChunkKey extracts the chunk ID from a chunk record key.
func idFromChunkKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(chunkPrefix):]))
}
