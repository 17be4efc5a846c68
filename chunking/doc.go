// Package chunking turns document text into overlapping, fixed-width windows.
//
// Text is first normalized (whitespace runs collapsed to a single space, ends
// trimmed) and then split by sliding a window of ChunkSize characters across it
// with a step of ChunkSize-ChunkOverlap. Lengths are measured in Unicode code
// points, so a window never cuts a multi-byte character in half.
//
// The last window is simply the remainder of the text and may be shorter than
// the overlap. Callers relying on stable chunk boundaries across runs (the
// embedding store keys chunks by their index) must not change this.
package chunking
