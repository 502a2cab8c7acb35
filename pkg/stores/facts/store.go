// Package facts implements the facts store (part of C2): the relational
// store of authoritative reports, merchants, and canonical transactions
// (there is no issuers table). Scoped statements run against a connection
// already bound to current_bank_id() via pkg/tenant, but Schema defines no
// row-security policy that reads that binding: invariant 1 (no row is ever
// read or written outside its bank) rests on each method's own bank_id
// check or WHERE bank_id = ... clause.
package facts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
	"github.com/payscope/payscope/pkg/tenant"
)

// Schema creates the facts-store tables. It enables no row-level security
// and creates no policy on current_bank_id(), the session variable
// pkg/tenant.Scope sets on acquisition. Natural keys mirror §3 invariants 1
// and 2.
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	report_id      TEXT PRIMARY KEY,
	bank_id        TEXT NOT NULL,
	report_type    TEXT NOT NULL,
	ingestion_time TIMESTAMP NOT NULL,
	source_network TEXT NOT NULL,
	record_count   INTEGER NOT NULL,
	schema_version TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS merchants (
	merchant_id TEXT NOT NULL,
	bank_id     TEXT NOT NULL,
	name        TEXT,
	PRIMARY KEY (bank_id, merchant_id)
);

CREATE TABLE IF NOT EXISTS transactions (
	transaction_id    TEXT NOT NULL,
	bank_id           TEXT NOT NULL,
	lifecycle_stage   TEXT NOT NULL,
	schema_version    TEXT NOT NULL,
	amount            TEXT NOT NULL,
	currency          TEXT NOT NULL,
	timestamp_utc     TIMESTAMP NOT NULL,
	merchant_id       TEXT,
	card_network      TEXT,
	report_id         TEXT NOT NULL,
	raw_artifact_id   TEXT NOT NULL,
	raw_object_key    TEXT NOT NULL,
	raw_row_or_page   INTEGER NOT NULL,
	confidence_score  REAL NOT NULL,
	PRIMARY KEY (bank_id, transaction_id, lifecycle_stage, schema_version)
);

CREATE TABLE IF NOT EXISTS outbox (
	outbox_id    TEXT PRIMARY KEY,
	bank_id      TEXT NOT NULL,
	report_id    TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'PENDING',
	attempts     INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL
);
`

// ErrOutOfOrderTransition is returned when a transaction write would
// regress its lifecycle stage (e.g. SETTLEMENT already recorded, now
// AUTH arrives) — the facts-store half of invariant against out-of-order
// lifecycle transitions (graph enforces the other half, see pkg/stores/graph).
var ErrOutOfOrderTransition = errors.New("facts: out-of-order lifecycle transition")

// Store is the facts-store client. All methods require a *tenant.Scope so
// the caller cannot forget to bind current_bank_id() (testable property 6).
type Store struct {
	db *sql.DB
}

// New wraps an open *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the schema if absent. Safe to call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// UpsertReport inserts report if report_id does not already exist, scoped
// to scope's bank. A second upsert with the same report_id is a no-op,
// matching the persister's idempotence requirement (§8).
func (s *Store) UpsertReport(ctx context.Context, scope *tenant.Scope, report model.CanonicalReport) error {
	if scope == nil {
		return payscopeerr.New(payscopeerr.KindTenantNotBound, "facts: UpsertReport called without a bound tenant scope")
	}
	if report.BankID != scope.BankID() {
		return payscopeerr.New(payscopeerr.KindTenantMismatch, "facts: report bank_id does not match bound scope")
	}
	_, err := scope.Conn().ExecContext(ctx, `
		INSERT INTO reports (report_id, bank_id, report_type, ingestion_time, source_network, record_count, schema_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (report_id) DO NOTHING
	`, report.ReportID, report.BankID, report.ReportType, report.IngestionTime, report.SourceNetwork, report.RecordCount, report.SchemaVersion)
	if err != nil {
		return fmt.Errorf("facts: upsert report: %w", err)
	}
	return nil
}

// UpsertMerchant inserts or refreshes a merchant's display name, keyed by
// (bank_id, merchant_id).
func (s *Store) UpsertMerchant(ctx context.Context, scope *tenant.Scope, merchantID, name string) error {
	if scope == nil {
		return payscopeerr.New(payscopeerr.KindTenantNotBound, "facts: UpsertMerchant called without a bound tenant scope")
	}
	_, err := scope.Conn().ExecContext(ctx, `
		INSERT INTO merchants (merchant_id, bank_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (bank_id, merchant_id) DO UPDATE SET name = excluded.name
	`, merchantID, scope.BankID(), name)
	if err != nil {
		return fmt.Errorf("facts: upsert merchant: %w", err)
	}
	return nil
}

// stageRank mirrors model.LifecycleStage's total order for the
// out-of-order guard below.
var stageRank = map[model.LifecycleStage]int{
	model.StageAuth:       0,
	model.StageClearing:   1,
	model.StageSettlement: 2,
}

// UpsertTransaction inserts txn under its natural key (invariant 2). If a
// row already exists for (bank_id, transaction_id, lifecycle_stage,
// schema_version) the call is a content-addressed no-op — re-running the
// persister on identical input produces zero new rows (§8 idempotence).
// It also rejects a transaction whose stage would regress a later stage
// already recorded for the same transaction_id, independent of lifecycle
// index, matching invariant 5's ordering rule at the facts-store layer.
func (s *Store) UpsertTransaction(ctx context.Context, scope *tenant.Scope, txn model.CanonicalTransaction, reportID string) error {
	if scope == nil {
		return payscopeerr.New(payscopeerr.KindTenantNotBound, "facts: UpsertTransaction called without a bound tenant scope")
	}
	if txn.BankID != scope.BankID() {
		return payscopeerr.New(payscopeerr.KindTenantMismatch, "facts: transaction bank_id does not match bound scope")
	}

	var latestStage string
	err := scope.Conn().QueryRowContext(ctx, `
		SELECT lifecycle_stage FROM transactions
		WHERE bank_id = $1 AND transaction_id = $2
		ORDER BY timestamp_utc DESC LIMIT 1
	`, scope.BankID(), txn.TransactionID).Scan(&latestStage)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("facts: check existing lifecycle stage: %w", err)
	}
	if err == nil && stageRank[model.LifecycleStage(latestStage)] > stageRank[txn.LifecycleStage] {
		return fmt.Errorf("%w: transaction %s already has stage %s, cannot write %s",
			ErrOutOfOrderTransition, txn.TransactionID, latestStage, txn.LifecycleStage)
	}

	_, err = scope.Conn().ExecContext(ctx, `
		INSERT INTO transactions
			(transaction_id, bank_id, lifecycle_stage, schema_version, amount, currency, timestamp_utc,
			 merchant_id, card_network, report_id, raw_artifact_id, raw_object_key, raw_row_or_page, confidence_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (bank_id, transaction_id, lifecycle_stage, schema_version) DO NOTHING
	`, txn.TransactionID, txn.BankID, string(txn.LifecycleStage), txn.SchemaVersion, txn.Amount.String(), txn.Currency,
		txn.TimestampUTC, txn.MerchantID, txn.CardNetwork, reportID,
		txn.RawSourceRef.ArtifactID, txn.RawSourceRef.ObjectKey, txn.RawSourceRef.RowOrPage, txn.ConfidenceScore)
	if err != nil {
		return fmt.Errorf("facts: upsert transaction: %w", err)
	}
	return nil
}

// EnqueueOutbox appends a fan-out event (§4.7, design note 9.2) on the
// scope's connection as its own statement: neither it nor the persister
// opens a database transaction around it and the preceding
// UpsertReport/UpsertTransaction writes. A repeated call with the same
// outbox_id is a no-op.
func (s *Store) EnqueueOutbox(ctx context.Context, scope *tenant.Scope, outboxID, reportID string, payloadJSON []byte, createdAt interface{}) error {
	if scope == nil {
		return payscopeerr.New(payscopeerr.KindTenantNotBound, "facts: EnqueueOutbox called without a bound tenant scope")
	}
	_, err := scope.Conn().ExecContext(ctx, `
		INSERT INTO outbox (outbox_id, bank_id, report_id, payload_json, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, 'PENDING', 0, $5)
		ON CONFLICT (outbox_id) DO NOTHING
	`, outboxID, scope.BankID(), reportID, string(payloadJSON), createdAt)
	if err != nil {
		return fmt.Errorf("facts: enqueue outbox: %w", err)
	}
	return nil
}

// TransactionCount returns the number of transaction rows for the bound
// tenant, used by the /admin/validate-datasets endpoint (§6).
func (s *Store) TransactionCount(ctx context.Context, scope *tenant.Scope) (int, error) {
	if scope == nil {
		return 0, payscopeerr.New(payscopeerr.KindTenantNotBound, "facts: TransactionCount called without a bound tenant scope")
	}
	var n int
	err := scope.Conn().QueryRowContext(ctx, `SELECT count(*) FROM transactions WHERE bank_id = $1`, scope.BankID()).Scan(&n)
	return n, err
}
