// Package service orchestrates verification job batches on top of the
// runner and results packages.
//
// Overview
// The Supervisor is the single collaborator-facing component. A batch of
// block numbers is accepted, tagged with a uuid and fanned out, one child
// process per block. Submission is fire and forget: the caller gets the
// batch id immediately, outcomes become visible through the aggregated
// listing or the logs.
//
// Data flow:
//
//	caller                Supervisor               runner.Runner
//	  |                        |                        |
//	  | SubmitBatch ---------->| parallel.Map --------->| Start() per block
//	  |<----- batch id --------|                        | PENDING -> spawn -> wait
//	  |                        |<------ Result ---------| terminal marker on disk
//	  |                        | slog + metrics         |
//	  |                        |                        |
//	  | Jobs() --------------->| results.List (or cached listing)
//	  |<----- []model.Job -----|
//
// Invariants:
//   - One batch goroutine per SubmitBatch, one child process per block.
//   - A failing job never aborts its batch siblings.
//   - No retry, no timeout, no cancellation of running jobs. Failure is
//     terminal and re-submission is the caller's decision.
//   - Same block number submitted twice races on the marker files, the
//     last writer wins. Deliberately not locked, see the runner package.
//
// The optional gocron schedule keeps a cached listing warm so large output
// directories do not get re-stated on every dashboard request.
package service
