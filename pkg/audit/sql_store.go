package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/payscope/payscope/pkg/model"
)

// SQLStore persists ledger entries keyed "event:{event_id}" in a relational
// table, generalizing the teacher's PostgresLedger idempotent-upsert
// pattern from "obligation" to "audit event".
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open *sql.DB.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS audit_ledger (
	ledger_key     TEXT PRIMARY KEY,
	event_id       TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	artifact_hash  TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	occurred_at    TIMESTAMP NOT NULL,
	payload_hash   TEXT NOT NULL,
	tx_id          TEXT NOT NULL,
	companion_json TEXT,
	created_at     TIMESTAMP NOT NULL
);
`

// Init creates the audit_ledger table if it does not already exist.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, ledgerSchema)
	return err
}

func ledgerKey(eventID string) string {
	return "event:" + eventID
}

func (s *SQLStore) Get(ctx context.Context, eventID string) (payloadHash, txID string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT payload_hash, tx_id FROM audit_ledger WHERE ledger_key = $1
	`, ledgerKey(eventID)).Scan(&payloadHash, &txID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	return payloadHash, txID, true, nil
}

func (s *SQLStore) Put(ctx context.Context, eventID, payloadHash, txID string, event model.AuditEvent, companion *Companion) error {
	var companionJSON []byte
	if companion != nil {
		var err error
		companionJSON, err = json.Marshal(companion)
		if err != nil {
			return fmt.Errorf("audit: marshal companion: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_ledger
			(ledger_key, event_id, event_type, artifact_hash, schema_version, occurred_at, payload_hash, tx_id, companion_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $6)
		ON CONFLICT (ledger_key) DO NOTHING
	`, ledgerKey(eventID), eventID, string(event.EventType), event.ArtifactHash, event.SchemaVersion,
		event.Timestamp, payloadHash, txID, string(companionJSON))
	return err
}
