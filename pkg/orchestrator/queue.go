// Package orchestrator implements the pipeline orchestrator (C8): a durable
// ParseJob queue with idempotent claim, exponential-backoff-with-jitter
// retry, and a dead-letter queue for exhausted or non-retryable failures.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/payscope/payscope/pkg/model"
)

// ErrNoPendingJobs is returned by Claim when the queue has nothing ready to
// run; callers should back off and poll again rather than treat it as fatal.
var ErrNoPendingJobs = errors.New("orchestrator: no pending parse jobs")

// ErrNotLeased is returned when a caller tries to act on a job it does not
// currently hold the lease for (e.g. a crashed worker's lease expired and
// another worker claimed it first).
var ErrNotLeased = errors.New("orchestrator: claim token mismatch or lease expired")

// Queue is the durable interface for ParseJob lifecycle management. A
// Postgres-backed implementation is provided by SQLQueue; tests may
// substitute an in-memory fake.
type Queue interface {
	// Enqueue creates a new ParseJob in PENDING state for artifactID.
	Enqueue(ctx context.Context, bankID, artifactID string) (model.ParseJob, error)

	// Claim leases the oldest PENDING job, marking it RUNNING and
	// incrementing AttemptCount. It uses SELECT ... FOR UPDATE SKIP LOCKED
	// so concurrent workers never contend for the same row (§5: "no two
	// workers progress the same job").
	Claim(ctx context.Context, leaseDuration time.Duration) (model.ParseJob, error)

	// Heartbeat extends a held lease so a long-running stage is not
	// reclaimed by another worker before it finishes.
	Heartbeat(ctx context.Context, jobID, claimToken string, leaseDuration time.Duration) error

	// Complete marks a job SUCCEEDED. Only the current lease holder may do
	// this; a stale claimToken returns ErrNotLeased.
	Complete(ctx context.Context, jobID, claimToken string) error

	// Retry clears the RUNNING lease and returns the job to PENDING for a
	// transient failure, recording lastErr for observability and setting
	// next_attempt_at to now+delay so Claim will not reclaim the job before
	// the computed backoff elapses (§4.8/§5: exponential backoff with
	// decorrelated jitter between retries).
	Retry(ctx context.Context, jobID, claimToken string, lastErr string, delay time.Duration) error

	// DeadLetter moves a job to the DLQ for a non-retryable failure or
	// exhausted retries, recording errorClass/errorDetail/payloadRef so it
	// can be reprocessed after a fix (design note: DLQ reprocessing is an
	// open question resolved as "manual admin call" — see DESIGN.md).
	DeadLetter(ctx context.Context, jobID, claimToken string, errorClass, errorDetail, payloadRef string) error

	// Get returns the current state of a job by ID.
	Get(ctx context.Context, jobID string) (model.ParseJob, error)

	// ReleaseExpiredLeases clears the claim token of any RUNNING job whose
	// lease has passed, returning it to PENDING so another worker can pick
	// it up — the crashed-worker recovery path described in §5.
	ReleaseExpiredLeases(ctx context.Context) (int, error)

	// PendingCount reports how many jobs are currently PENDING, the signal
	// the API's backpressure check compares against its high-watermark
	// before accepting a new upload.
	PendingCount(ctx context.Context) (int, error)
}

// StageFunc is one pipeline stage (extract, tag, map, validate, persist,
// audit). Returning a *payscopeerr.Error with a non-retryable Kind moves the
// job straight to the DLQ; any other error is retried per the backoff
// policy up to MaxAttempts.
type StageFunc func(ctx context.Context, job model.ParseJob) error
