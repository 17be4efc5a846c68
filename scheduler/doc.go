// Package scheduler embeds pending chunks incrementally.
//
// A run pages through the chunks without an embedding in ID order, embeds
// each page on a bounded worker pool and commits the vectors of a page in a
// single write. Rate-limited calls are retried with exponential backoff;
// other failures are recorded in the run's Report and the chunk simply stays
// pending, so running again picks up exactly the work that is left.
//
// Example usage:
//
//	s, err := scheduler.New(repo, embedder, scheduler.DefaultConfig(), os.Stderr)
//	if err != nil {
//	    return err
//	}
//	report, err := s.Run(ctx)
//	report.WriteSummary(os.Stdout)
package scheduler
