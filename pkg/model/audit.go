package model

import "time"

// AuditEventType is the taxonomy of events the audit ledger accepts.
type AuditEventType string

const (
	AuditIngest        AuditEventType = "INGEST"
	AuditAgentDecision AuditEventType = "AGENT_DECISION"
	AuditForecast      AuditEventType = "FORECAST"
)

// AuditEvent is one entry in the append-only ledger, keyed by EventID.
// ArtifactHash is the 64-character lowercase hex sha256 of the canonically
// serialized payload (design note 9.1); two writes with the same EventID
// must carry the same ArtifactHash or the second write is rejected
// (invariant 6).
type AuditEvent struct {
	EventID       string         `json:"event_id"`
	EventType     AuditEventType `json:"event_type"`
	ArtifactHash  string         `json:"artifact_hash"`
	SchemaVersion string         `json:"schema_version"`
	Timestamp     time.Time      `json:"timestamp"`
}

// MappingSource tags whether a field mapping came from the LLM or the
// deterministic rule-based fallback, per design note 9.1.
type MappingSource string

const (
	MappingSourceModel MappingSource = "model"
	MappingSourceRule  MappingSource = "rule"
)
