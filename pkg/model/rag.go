package model

import "time"

// Intent is the classified shape of an incoming chat query.
type Intent string

const (
	IntentDescribe Intent = "DESCRIBE"
	IntentCompare  Intent = "COMPARE"
	IntentAnomaly  Intent = "ANOMALY"
	IntentForecast Intent = "FORECAST"
	IntentWhatIf   Intent = "WHAT_IF"
)

// IntentClassification is classify_intent's result.
type IntentClassification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// TimeRange bounds a retrieval or forecast window, normalized to UTC.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// EvidenceVectorHit is one vector-store match surfaced during retrieval.
type EvidenceVectorHit struct {
	TransactionID  string  `json:"transaction_id"`
	LifecycleStage string  `json:"lifecycle_stage"`
	Score          float64 `json:"score"`
	Text           string  `json:"text"`
}

// EvidenceNeighborhood is one graph-traversal result.
type EvidenceNeighborhood struct {
	TransactionID  string `json:"transaction_id"`
	LifecycleStage string `json:"lifecycle_stage"`
	MerchantID     string `json:"merchant_id"`
	Amount         string `json:"amount"`
}

// EvidenceVolumeBucket is one time-series aggregation bucket.
type EvidenceVolumeBucket struct {
	CardNetwork    string `json:"card_network"`
	LifecycleStage string `json:"lifecycle_stage"`
	TotalAmount    string `json:"total_amount"`
	TxnCount       int64  `json:"txn_count"`
}

// Evidence is retrieve's fanned-out, tenant-scoped result set.
type Evidence struct {
	VectorHits    []EvidenceVectorHit    `json:"vector_hits"`
	Neighborhoods []EvidenceNeighborhood `json:"neighborhoods"`
	VolumeBuckets []EvidenceVolumeBucket `json:"volume_buckets"`
}

// IsEmpty reports whether retrieval surfaced nothing at all, the trigger
// for the explicit empty-evidence narrative rather than a hallucinated one.
func (e Evidence) IsEmpty() bool {
	return len(e.VectorHits) == 0 && len(e.Neighborhoods) == 0 && len(e.VolumeBuckets) == 0
}

// AgentName identifies one of the fixed agent suite members.
type AgentName string

const (
	AgentFraud          AgentName = "FraudAgent"
	AgentReconciliation AgentName = "ReconciliationAgent"
	AgentForecasting    AgentName = "ForecastingAgent"
	AgentSimulation     AgentName = "SimulationAgent"
	AgentCompliance     AgentName = "ComplianceAgent"
)

// AgentResult is what every agent's run() returns.
type AgentResult struct {
	Agent      AgentName      `json:"agent"`
	Summary    string         `json:"summary"`
	Metrics    map[string]any `json:"metrics"`
	Confidence float64        `json:"confidence"`
	Rationale  string         `json:"rationale"`
}

// Forecast is the optional point-forecast payload a StructuredResponse may carry.
type Forecast struct {
	Point      float64 `json:"point"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
	Trend      string  `json:"trend"`
}

// StructuredResponse is compose's output, and POST /chat/query's body.
type StructuredResponse struct {
	Summary       string         `json:"summary"`
	Metrics       map[string]any `json:"metrics"`
	Forecast      *Forecast      `json:"forecast,omitempty"`
	Confidence    float64        `json:"confidence"`
	Intent        Intent         `json:"intent"`
	AgentsInvoked []AgentName    `json:"agents_invoked"`
}
