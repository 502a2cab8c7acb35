package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/payscope/payscope/pkg/model"
)

// SQLQueue is a database/sql-backed Queue written for Postgres (lib/pq);
// its tests drive it through go-sqlmock. The claim query's "FOR UPDATE SKIP
// LOCKED" clause and the $n placeholders are Postgres syntax, and the SQL
// text is fixed: NewSQLQueue takes no dialect or schema parameter.
type SQLQueue struct {
	db *sql.DB
}

// NewSQLQueue wraps an open *sql.DB. Callers are responsible for running
// Init once per database to create the parse_jobs table.
func NewSQLQueue(db *sql.DB) *SQLQueue {
	return &SQLQueue{db: db}
}

const parseJobsSchema = `
CREATE TABLE IF NOT EXISTS parse_jobs (
	job_id          TEXT PRIMARY KEY,
	artifact_id     TEXT NOT NULL,
	bank_id         TEXT NOT NULL,
	status          TEXT NOT NULL,
	attempt_count   INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT,
	claim_token     TEXT,
	leased_until    TIMESTAMP,
	next_attempt_at TIMESTAMP,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS dlq_entries (
	job_id       TEXT NOT NULL,
	error_class  TEXT NOT NULL,
	error_detail TEXT,
	payload_ref  TEXT,
	created_at   TIMESTAMP NOT NULL
);
`

// Init creates the parse_jobs table if it does not already exist.
func (q *SQLQueue) Init(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, parseJobsSchema)
	return err
}

func (q *SQLQueue) Enqueue(ctx context.Context, bankID, artifactID string) (model.ParseJob, error) {
	now := time.Now().UTC()
	job := model.ParseJob{
		JobID:      uuid.NewString(),
		ArtifactID: artifactID,
		BankID:     bankID,
		Status:     model.JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO parse_jobs (job_id, artifact_id, bank_id, status, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
	`, job.JobID, job.ArtifactID, job.BankID, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return model.ParseJob{}, fmt.Errorf("orchestrator: enqueue: %w", err)
	}
	return job, nil
}

// Claim leases the oldest PENDING job whose backoff has elapsed. Matches the
// claim shape described in §4.8: SELECT ... FOR UPDATE SKIP LOCKED, then set
// status=RUNNING, claim_token=random, attempt_count+=1, all inside one
// transaction so two workers can never observe and lease the same row. The
// next_attempt_at gate is what makes Retry's computed backoff actually delay
// reclaim instead of the job being picked back up on the very next poll.
func (q *SQLQueue) Claim(ctx context.Context, leaseDuration time.Duration) (model.ParseJob, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ParseJob{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var jobID string
	err = tx.QueryRowContext(ctx, `
		SELECT job_id FROM parse_jobs
		WHERE status = $1 AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, model.JobPending, now).Scan(&jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ParseJob{}, ErrNoPendingJobs
		}
		return model.ParseJob{}, err
	}

	token := uuid.NewString()
	now = time.Now().UTC()
	leasedUntil := now.Add(leaseDuration)
	if _, err := tx.ExecContext(ctx, `
		UPDATE parse_jobs
		SET status = $1, claim_token = $2, leased_until = $3, attempt_count = attempt_count + 1, updated_at = $4
		WHERE job_id = $5
	`, model.JobRunning, token, leasedUntil, now, jobID); err != nil {
		return model.ParseJob{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.ParseJob{}, err
	}
	return q.Get(ctx, jobID)
}

func (q *SQLQueue) Heartbeat(ctx context.Context, jobID, claimToken string, leaseDuration time.Duration) error {
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `
		UPDATE parse_jobs SET leased_until = $1, updated_at = $2
		WHERE job_id = $3 AND claim_token = $4 AND status = $5
	`, now.Add(leaseDuration), now, jobID, claimToken, model.JobRunning)
	if err != nil {
		return err
	}
	return checkLeaseHeld(res)
}

func (q *SQLQueue) Complete(ctx context.Context, jobID, claimToken string) error {
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `
		UPDATE parse_jobs SET status = $1, claim_token = NULL, leased_until = NULL, updated_at = $2
		WHERE job_id = $3 AND claim_token = $4 AND status = $5
	`, model.JobSucceeded, now, jobID, claimToken, model.JobRunning)
	if err != nil {
		return err
	}
	return checkLeaseHeld(res)
}

func (q *SQLQueue) Retry(ctx context.Context, jobID, claimToken string, lastErr string, delay time.Duration) error {
	now := time.Now().UTC()
	nextAttemptAt := now.Add(delay)
	res, err := q.db.ExecContext(ctx, `
		UPDATE parse_jobs
		SET status = $1, claim_token = NULL, leased_until = NULL, next_attempt_at = $2, last_error = $3, updated_at = $4
		WHERE job_id = $5 AND claim_token = $6 AND status = $7
	`, model.JobPending, nextAttemptAt, lastErr, now, jobID, claimToken, model.JobRunning)
	if err != nil {
		return err
	}
	return checkLeaseHeld(res)
}

func (q *SQLQueue) DeadLetter(ctx context.Context, jobID, claimToken string, errorClass, errorDetail, payloadRef string) error {
	now := time.Now().UTC()
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE parse_jobs
		SET status = $1, claim_token = NULL, leased_until = NULL, last_error = $2, updated_at = $3
		WHERE job_id = $4 AND claim_token = $5
	`, model.JobDLQ, errorDetail, now, jobID, claimToken)
	if err != nil {
		return err
	}
	if err := checkLeaseHeld(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dlq_entries (job_id, error_class, error_detail, payload_ref, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, jobID, errorClass, errorDetail, payloadRef, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (q *SQLQueue) Get(ctx context.Context, jobID string) (model.ParseJob, error) {
	var job model.ParseJob
	var lastError, claimToken sql.NullString
	var leasedUntil, nextAttemptAt sql.NullTime
	err := q.db.QueryRowContext(ctx, `
		SELECT job_id, artifact_id, bank_id, status, attempt_count, last_error, claim_token, leased_until, next_attempt_at, created_at, updated_at
		FROM parse_jobs WHERE job_id = $1
	`, jobID).Scan(&job.JobID, &job.ArtifactID, &job.BankID, &job.Status, &job.AttemptCount,
		&lastError, &claimToken, &leasedUntil, &nextAttemptAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ParseJob{}, fmt.Errorf("orchestrator: job %s: %w", jobID, sql.ErrNoRows)
		}
		return model.ParseJob{}, err
	}
	job.LastError = lastError.String
	job.ClaimToken = claimToken.String
	if leasedUntil.Valid {
		t := leasedUntil.Time
		job.LeasedUntil = &t
	}
	if nextAttemptAt.Valid {
		t := nextAttemptAt.Time
		job.NextAttemptAt = &t
	}
	return job, nil
}

// ReleaseExpiredLeases implements the crashed-worker recovery described in
// §5: "crashed workers release claims after a timeout". Any RUNNING job
// whose lease has passed is returned to PENDING so it can be reclaimed.
func (q *SQLQueue) ReleaseExpiredLeases(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `
		UPDATE parse_jobs
		SET status = $1, claim_token = NULL, leased_until = NULL, updated_at = $2
		WHERE status = $3 AND leased_until < $2
	`, model.JobPending, now, model.JobRunning)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PendingCount returns the number of PENDING jobs across all tenants, used
// by the API layer's backpressure check before accepting a new upload.
func (q *SQLQueue) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parse_jobs WHERE status = $1`, model.JobPending).Scan(&n)
	return n, err
}

func checkLeaseHeld(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotLeased
	}
	return nil
}
