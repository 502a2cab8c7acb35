package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LifecycleStage is a transaction's position in the AUTH → CLEARING →
// SETTLEMENT payment lifecycle.
type LifecycleStage string

const (
	StageAuth       LifecycleStage = "AUTH"
	StageClearing   LifecycleStage = "CLEARING"
	StageSettlement LifecycleStage = "SETTLEMENT"
)

// stageOrder gives the lifecycle's total order, used to check that graph
// edges are inserted with non-decreasing temporal ordering (property 5).
var stageOrder = map[LifecycleStage]int{
	StageAuth:       0,
	StageClearing:   1,
	StageSettlement: 2,
}

// Precedes reports whether s comes strictly before next in the lifecycle.
func (s LifecycleStage) Precedes(next LifecycleStage) bool {
	return stageOrder[s] < stageOrder[next]
}

// RawSourceRef cites exactly where in the original artifact a canonical
// transaction's values came from.
type RawSourceRef struct {
	ArtifactID string `json:"artifact_id"`
	ObjectKey  string `json:"object_key"`
	RowOrPage  int    `json:"row_or_page"`
}

// CanonicalTransaction is the normalized, persisted form of one payment
// lifecycle event. The natural key for uniqueness (invariant 2) is
// (BankID, TransactionID, LifecycleStage, SchemaVersion).
type CanonicalTransaction struct {
	TransactionID   string          `json:"transaction_id"`
	BankID          string          `json:"bank_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	TimestampUTC    time.Time       `json:"timestamp_utc"`
	LifecycleStage  LifecycleStage  `json:"lifecycle_stage"`
	MerchantID      string          `json:"merchant_id"`
	CardNetwork     string          `json:"card_network"`
	RawSourceRef    RawSourceRef    `json:"raw_source_ref"`
	ConfidenceScore float64         `json:"confidence_score"`
	SchemaVersion   string          `json:"schema_version"`
}

// NaturalKey returns the tuple that must be globally unique per invariant 2.
func (t CanonicalTransaction) NaturalKey() [4]string {
	return [4]string{t.BankID, t.TransactionID, string(t.LifecycleStage), t.SchemaVersion}
}

// CanonicalReport is the report-level fact accompanying a batch of
// canonical transactions extracted from one artifact.
type CanonicalReport struct {
	ReportID      string    `json:"report_id"`
	ReportType    string    `json:"report_type"`
	IngestionTime time.Time `json:"ingestion_time"`
	SourceNetwork string    `json:"source_network"`
	RecordCount   int       `json:"record_count"`
	SchemaVersion string    `json:"schema_version"`
	BankID        string    `json:"bank_id"`
}
