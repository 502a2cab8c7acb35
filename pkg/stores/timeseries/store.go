// Package timeseries implements the time-series store (part of C2):
// hypertable-partitioned append-only aggregates over transaction volume,
// fraud counts, and dispute rates, bucketed by (bucket_time, bank_id,
// source_network, lifecycle_stage). Invariant 3 ("time-series rows are
// append-only") is enforced both here (no UPDATE/DELETE statement exists
// in this package) and, for transaction_volume only, at the database layer
// via Schema's trigger; fraud_counts and dispute_rates have no trigger.
package timeseries

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/payscope/payscope/pkg/payscopeerr"
	"github.com/payscope/payscope/pkg/tenant"
)

// Schema creates the hypertables and the reject-mutation trigger on
// transaction_volume. The create_hypertable calls need CREATE EXTENSION
// timescaledb to have run against TIMESERIES_DSN; on plain Postgres they
// fail, so Init returns an error. No continuous aggregate is defined.
const Schema = `
CREATE TABLE IF NOT EXISTS transaction_volume (
	bucket_time     TIMESTAMP NOT NULL,
	bank_id         TEXT NOT NULL,
	source_network  TEXT NOT NULL,
	lifecycle_stage TEXT NOT NULL,
	count           BIGINT NOT NULL,
	total_amount    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fraud_counts (
	bucket_time TIMESTAMP NOT NULL,
	bank_id     TEXT NOT NULL,
	count       BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS dispute_rates (
	bucket_time TIMESTAMP NOT NULL,
	bank_id     TEXT NOT NULL,
	disputes    BIGINT NOT NULL,
	total       BIGINT NOT NULL
);

SELECT create_hypertable('transaction_volume', 'bucket_time', if_not_exists => TRUE);
SELECT create_hypertable('fraud_counts', 'bucket_time', if_not_exists => TRUE);
SELECT create_hypertable('dispute_rates', 'bucket_time', if_not_exists => TRUE);

CREATE OR REPLACE FUNCTION reject_mutation() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'timeseries rows are append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS transaction_volume_no_update ON transaction_volume;
CREATE TRIGGER transaction_volume_no_update BEFORE UPDATE OR DELETE ON transaction_volume
	FOR EACH ROW EXECUTE FUNCTION reject_mutation();
`

// VolumeBucket is one row of the transaction_volume hypertable.
type VolumeBucket struct {
	BucketTime     time.Time
	BankID         string
	SourceNetwork  string
	LifecycleStage string
	Count          int64
	TotalAmount    string
}

// Store is the time-series client, backed by the TIMESERIES_DSN database.
type Store struct {
	db *sql.DB
}

// New wraps an open *sql.DB pointed at TIMESERIES_DSN.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the schema if absent. Safe to call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// DB returns the underlying connection pool so callers can bind their own
// tenant.Scope against this store's database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// AppendVolume inserts a bucket row. There is no corresponding Update or
// Delete method in this package by design — invariant 3.
func (s *Store) AppendVolume(ctx context.Context, scope *tenant.Scope, bucket VolumeBucket) error {
	if scope == nil {
		return payscopeerr.New(payscopeerr.KindTenantNotBound, "timeseries: AppendVolume called without a bound tenant scope")
	}
	if bucket.BankID != scope.BankID() {
		return payscopeerr.New(payscopeerr.KindTenantMismatch, "timeseries: bucket bank_id does not match bound scope")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_volume (bucket_time, bank_id, source_network, lifecycle_stage, count, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, bucket.BucketTime, bucket.BankID, bucket.SourceNetwork, bucket.LifecycleStage, bucket.Count, bucket.TotalAmount)
	if err != nil {
		return fmt.Errorf("timeseries: append volume: %w", err)
	}
	return nil
}

// RangeSummary is the aggregate result for a time window, used both by
// the RAG engine's retrieval fan-out and by forecasting inputs.
type RangeSummary struct {
	BucketTime  time.Time
	Count       int64
	TotalAmount string
}

// QueryRange returns the transaction_volume rows for [from, to) under the
// bound tenant, one RangeSummary per row in bucket_time order with no
// summing, matching invariant 2 (every returned row's bank_id is the
// session's).
func (s *Store) QueryRange(ctx context.Context, scope *tenant.Scope, from, to time.Time) ([]RangeSummary, error) {
	if scope == nil {
		return nil, payscopeerr.New(payscopeerr.KindTenantNotBound, "timeseries: QueryRange called without a bound tenant scope")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket_time, count, total_amount FROM transaction_volume
		WHERE bank_id = $1 AND bucket_time >= $2 AND bucket_time < $3
		ORDER BY bucket_time ASC
	`, scope.BankID(), from, to)
	if err != nil {
		return nil, fmt.Errorf("timeseries: query range: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RangeSummary
	for rows.Next() {
		var r RangeSummary
		if err := rows.Scan(&r.BucketTime, &r.Count, &r.TotalAmount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NetworkStageBreakdown is one (source_network, lifecycle_stage) group
// summed over a window, used by the RAG engine's retrieval fan-out.
type NetworkStageBreakdown struct {
	SourceNetwork  string
	LifecycleStage string
	Count          int64
	TotalAmount    string
}

// QueryVolumeBreakdown sums transaction_volume rows for [from, to) under
// the bound tenant, grouped by source network and lifecycle stage.
func (s *Store) QueryVolumeBreakdown(ctx context.Context, scope *tenant.Scope, from, to time.Time) ([]NetworkStageBreakdown, error) {
	if scope == nil {
		return nil, payscopeerr.New(payscopeerr.KindTenantNotBound, "timeseries: QueryVolumeBreakdown called without a bound tenant scope")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_network, lifecycle_stage, SUM(count), SUM(total_amount::numeric)::text
		FROM transaction_volume
		WHERE bank_id = $1 AND bucket_time >= $2 AND bucket_time < $3
		GROUP BY source_network, lifecycle_stage
		ORDER BY source_network, lifecycle_stage
	`, scope.BankID(), from, to)
	if err != nil {
		return nil, fmt.Errorf("timeseries: query volume breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []NetworkStageBreakdown
	for rows.Next() {
		var b NetworkStageBreakdown
		if err := rows.Scan(&b.SourceNetwork, &b.LifecycleStage, &b.Count, &b.TotalAmount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
