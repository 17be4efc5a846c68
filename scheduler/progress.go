package scheduler

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker prints a single, overwritten progress line for a run.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu sync.Mutex
	w  io.Writer

	total    int
	every    int
	done     int
	failed   int
	lastDone int

	start   time.Time
	running bool
}

// NewProgressTracker creates a tracker for total chunks that prints after
// at least every chunks have completed since the last line. A nil writer
// discards the output.
func NewProgressTracker(w io.Writer, total, every int) *ProgressTracker {
	if w == nil {
		w = io.Discard
	}
	return &ProgressTracker{w: w, total: total, every: every}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.start = time.Now()
	p.running = true
	p.done, p.failed, p.lastDone = 0, 0, 0
}

// Increment records delta finished chunks, failed of which were not embedded.
// Counts are capped at the total announced to NewProgressTracker.
func (p *ProgressTracker) Increment(delta, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.done = min(p.done+delta, p.total)
	p.failed = min(p.failed+failed, p.done)

	if p.done-p.lastDone >= p.every {
		p.print()
		p.lastDone = p.done
	}
}

// Finish prints the final line and ends it. The count is left as is, so a
// run that stopped early shows where it stopped.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.print()
	fmt.Fprintln(p.w)
	p.running = false
}

// Elapsed returns the time since Start, or zero if the tracker never started.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.start.IsZero() {
		return 0
	}
	return time.Since(p.start)
}

// print writes the progress line. Callers hold p.mu.
func (p *ProgressTracker) print() {
	var pct, perSec float64
	if p.total > 0 {
		pct = 100 * float64(p.done) / float64(p.total)
	}
	if secs := time.Since(p.start).Seconds(); secs > 0 {
		perSec = float64(p.done) / secs
	}
	fmt.Fprintf(p.w, "\rProgress: %d/%d (%.1f%%), %d failed, %.1f chunks/s",
		p.done, p.total, pct, p.failed, perSec)
}
