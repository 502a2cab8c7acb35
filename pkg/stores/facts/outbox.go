package facts

import (
	"context"
	"fmt"
	"time"
)

// OutboxRecord is one pending fan-out event: the normalized ingestion
// result, addressed by a deterministic id so draining it twice is a no-op.
type OutboxRecord struct {
	OutboxID    string
	BankID      string
	ReportID    string
	PayloadJSON []byte
	Attempts    int
	CreatedAt   time.Time
}

// PollPending fetches up to limit PENDING outbox rows in creation order,
// preserving per-artifact ordering as required by §5 ("outbox drain
// preserves per-artifact ordering"). It does not lock rows — the drainer
// is a single worker per design note 9.2 ("a single drainer guarantees
// at-least-once"), so no cross-worker contention exists to guard against.
func (s *Store) PollPending(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outbox_id, bank_id, report_id, payload_json, attempts, created_at
		FROM outbox WHERE status = 'PENDING'
		ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("facts: poll outbox: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []OutboxRecord
	for rows.Next() {
		var r OutboxRecord
		var payload string
		if err := rows.Scan(&r.OutboxID, &r.BankID, &r.ReportID, &payload, &r.Attempts, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.PayloadJSON = []byte(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkDone marks an outbox row DONE once every destination store's
// idempotency key confirms delivery.
func (s *Store) MarkDone(ctx context.Context, outboxID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE outbox SET status = 'DONE' WHERE outbox_id = $1`, outboxID)
	return err
}

// MarkFailed increments the attempt counter for a retry, or moves the row
// to FAILED (for DLQ pickup) once attempts reaches maxRetries.
func (s *Store) MarkFailed(ctx context.Context, outboxID string, attempts, maxRetries int) error {
	status := "PENDING"
	if attempts >= maxRetries {
		status = "FAILED"
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = $1, status = $2 WHERE outbox_id = $3
	`, attempts, status, outboxID)
	return err
}
