// Package audit implements the audit ledger client (C10): canonical
// JSON hashing plus an append-only event log keyed by event_id, with
// idempotent writes — a second write for an existing event_id is accepted
// only if its canonical hash matches the stored one (invariant 6).
package audit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/payscope/payscope/pkg/canonicalize"
	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
)

var hex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

// SchemaVersion is the canonical transaction schema this ledger currently
// understands. CompatibleSchemaVersion checks incoming events against it.
const SchemaVersion = "1.0"

var allowedEventTypes = map[model.AuditEventType]bool{
	model.AuditIngest:        true,
	model.AuditAgentDecision: true,
	model.AuditForecast:      true,
}

// Companion carries the off-chain detail that accompanies an AuditEvent so
// an auditor can recompute its hash from source data and match it against
// the ledger entry (§4.10).
type Companion struct {
	ModelVersion  string  `json:"model_version,omitempty"`
	PromptVersion string  `json:"prompt_version,omitempty"`
	SchemaVersion string  `json:"schema_version"`
	InputHash     string  `json:"input_hash"`
	OutputHash    string  `json:"output_hash"`
	Confidence    float64 `json:"confidence"`
	LedgerEventID string  `json:"ledger_event_id"`
	BankID        string  `json:"bank_id"`
}

// PutResult is returned by PutEvent: TxID plus whether this call was the
// original write or an idempotent replay of an identical prior write.
type PutResult struct {
	TxID     string
	Replayed bool
}

// Store is the append-only keyed persistence backing the ledger. The key
// is "event:{event_id}" per §6's persisted-state layout.
type Store interface {
	// Get returns the stored payload hash and tx_id for eventID, or
	// (false) if no entry exists yet.
	Get(ctx context.Context, eventID string) (payloadHash string, txID string, found bool, err error)
	// Put stores a new entry; callers only call this after confirming via
	// Get that no conflicting entry exists.
	Put(ctx context.Context, eventID, payloadHash, txID string, event model.AuditEvent, companion *Companion) error
}

// Ledger is the C10 contract: put_event(event) -> tx_id.
type Ledger struct {
	store Store
}

// New builds a Ledger backed by store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Validate checks the structural requirements from §4.10: event_id is a
// UUID, event_type is in the allowed set, artifact_hash is exactly 64
// lowercase hex characters, schema_version is non-empty, timestamp is set.
func Validate(event model.AuditEvent) error {
	if _, err := uuid.Parse(event.EventID); err != nil {
		return payscopeerr.New(payscopeerr.KindValidationRowFailed, "audit event_id must be a UUID")
	}
	if !allowedEventTypes[event.EventType] {
		return payscopeerr.New(payscopeerr.KindValidationRowFailed, fmt.Sprintf("unknown audit event_type %q", event.EventType))
	}
	if !hex64.MatchString(event.ArtifactHash) {
		return payscopeerr.New(payscopeerr.KindValidationRowFailed, "artifact_hash must be 64 lowercase hex characters")
	}
	if event.SchemaVersion == "" {
		return payscopeerr.New(payscopeerr.KindValidationRowFailed, "schema_version is required")
	}
	if !CompatibleSchemaVersion(SchemaVersion, event.SchemaVersion) {
		return payscopeerr.New(payscopeerr.KindValidationRowFailed,
			fmt.Sprintf("schema_version %q is newer than this ledger understands (%q)", event.SchemaVersion, SchemaVersion))
	}
	if event.Timestamp.IsZero() {
		return payscopeerr.New(payscopeerr.KindValidationRowFailed, "timestamp is required")
	}
	return nil
}

// CanonicalHash returns the sha256 hex digest of event's RFC 8785 canonical
// JSON form — "stable key-sorted JSON with compact separators and no
// whitespace" per §4.10.
func CanonicalHash(event model.AuditEvent) (string, error) {
	return canonicalize.CanonicalHash(event)
}

// PutEvent appends event to the ledger. If an entry already exists under
// event.EventID, its payload hash must equal the new event's hash: a match
// returns the existing tx_id with Replayed=true (idempotent no-op); a
// mismatch returns KindIdempotencyViolation.
func (l *Ledger) PutEvent(ctx context.Context, event model.AuditEvent, companion *Companion) (PutResult, error) {
	if err := Validate(event); err != nil {
		return PutResult{}, err
	}

	hash, err := CanonicalHash(event)
	if err != nil {
		return PutResult{}, fmt.Errorf("audit: canonical hash: %w", err)
	}

	existingHash, existingTxID, found, err := l.store.Get(ctx, event.EventID)
	if err != nil {
		return PutResult{}, fmt.Errorf("audit: lookup existing event: %w", err)
	}
	if found {
		if existingHash == hash {
			return PutResult{TxID: existingTxID, Replayed: true}, nil
		}
		return PutResult{}, payscopeerr.New(payscopeerr.KindIdempotencyViolation,
			fmt.Sprintf("event %s already recorded with a different payload hash", event.EventID))
	}

	txID := uuid.NewString()
	if err := l.store.Put(ctx, event.EventID, hash, txID, event, companion); err != nil {
		return PutResult{}, fmt.Errorf("audit: append: %w", err)
	}
	return PutResult{TxID: txID, Replayed: false}, nil
}

// BuildIngestEvent constructs the INGEST AuditEvent for a normalized
// ingestion result, with artifact_hash = sha256(canonical_json(result))
// as required by §4.7 step 6.
func BuildIngestEvent(schemaVersion string, normalizedResult interface{}, at time.Time) (model.AuditEvent, error) {
	hash, err := canonicalize.CanonicalHash(normalizedResult)
	if err != nil {
		return model.AuditEvent{}, err
	}
	return model.AuditEvent{
		EventID:       uuid.NewString(),
		EventType:     model.AuditIngest,
		ArtifactHash:  hash,
		SchemaVersion: schemaVersion,
		Timestamp:     at.UTC(),
	}, nil
}

// DecodeHexHash validates a 64-character lowercase hex digest string
// (uppercase input is rejected) and returns its decoded bytes, used when
// recomputing a hash for auditor cross-checks.
func DecodeHexHash(s string) ([]byte, error) {
	if !hex64.MatchString(s) {
		return nil, errors.New("audit: not a 64-character lowercase hex hash")
	}
	return hex.DecodeString(s)
}
