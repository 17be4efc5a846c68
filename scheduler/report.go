package scheduler

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/kbembed/ai"
	"github.com/poiesic/kbembed/core"
	"github.com/poiesic/kbembed/storage"
)

// FailureKind classifies why a chunk was left pending.
type FailureKind string

const (
	KindTransport         FailureKind = FailureKind(ai.KindTransport)
	KindRateLimit         FailureKind = FailureKind(ai.KindRateLimit)
	KindProvider          FailureKind = FailureKind(ai.KindProvider)
	KindUnknown           FailureKind = FailureKind(ai.KindUnknown)
	KindNotFound          FailureKind = "not_found"
	KindDimensionMismatch FailureKind = "dimension_mismatch"
	KindCommitFailed      FailureKind = "commit_failed"
)

// failureKindOf maps an error of a single chunk to its FailureKind.
func failureKindOf(err error) FailureKind {
	switch {
	case errors.Is(err, ErrCommitFailed):
		return KindCommitFailed
	case errors.Is(err, ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	}
	return FailureKind(ai.KindOf(err))
}

// ChunkFailure records a chunk that stayed pending.
type ChunkFailure struct {
	ID      core.ID
	Kind    FailureKind
	Message string
}

// Report summarizes one run.
// Attempted always equals Succeeded + Failed.
type Report struct {
	RunID     string
	Attempted int
	Succeeded int
	Failed    int
	Failures  []ChunkFailure
	Elapsed   time.Duration
}

func (r *Report) addFailure(id core.ID, err error) {
	r.Failed++
	r.Failures = append(r.Failures, ChunkFailure{
		ID:      id,
		Kind:    failureKindOf(err),
		Message: err.Error(),
	})
}

// FailedIDs returns the IDs of all failed chunks in the order they failed.
func (r *Report) FailedIDs() []core.ID {
	ids := make([]core.ID, len(r.Failures))
	for i, f := range r.Failures {
		ids[i] = f.ID
	}
	return ids
}

// FailuresByKind counts failures per kind.
func (r *Report) FailuresByKind() map[FailureKind]int {
	counts := make(map[FailureKind]int)
	for _, f := range r.Failures {
		counts[f.Kind]++
	}
	return counts
}

// WriteSummary prints a human-readable summary followed by one line per failed chunk.
func (r *Report) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "Run %s: attempted %d, succeeded %d, failed %d in %v\n",
		r.RunID, r.Attempted, r.Succeeded, r.Failed, r.Elapsed.Round(time.Millisecond))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  chunk %d [%s]: %s\n", f.ID, f.Kind, f.Message)
	}
}
