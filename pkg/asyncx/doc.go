// Package asyncx provides the small set of structured-concurrency helpers
// the memory engine fans out with: [All] for a fixed group of calls that
// must all succeed, [AllSettled] for a batch where per-item failures are
// kept and reported rather than aborting the rest, and [Pool] for
// bounded-worker processing of larger item lists.
//
// Every helper waits for all of its goroutines before returning, so no
// work leaks past the call, and every helper preserves input order in its
// results.
package asyncx
