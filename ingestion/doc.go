// Package ingestion turns raw documents into stored, pending chunks.
//
// The Ingester validates each document, normalizes its text, drops
// documents that are too short or already stored, splits the rest into
// overlapping chunks and inserts all chunks of a document in one call.
// Chunks are stored without an embedding; the scheduler package embeds
// them later.
package ingestion
