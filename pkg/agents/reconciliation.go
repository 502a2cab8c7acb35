package agents

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/payscope/payscope/pkg/model"
)

// ReconciliationAgent compares volume buckets across card networks and
// lifecycle stages, and doubles as the light-summary responder for
// DESCRIBE-intent queries.
type ReconciliationAgent struct{}

func NewReconciliationAgent() *ReconciliationAgent { return &ReconciliationAgent{} }

func (a *ReconciliationAgent) Name() model.AgentName { return model.AgentReconciliation }

func (a *ReconciliationAgent) Run(ctx context.Context, taskID string, inputs Inputs) model.AgentResult {
	buckets := inputs.Evidence.VolumeBuckets
	if len(buckets) == 0 {
		return model.AgentResult{
			Agent:      model.AgentReconciliation,
			Summary:    "No transaction volume evidence was available for this window.",
			Metrics:    map[string]any{},
			Confidence: 0.15,
			Rationale:  "empty_volume_evidence",
		}
	}

	byNetwork := map[string]decimal.Decimal{}
	byStage := map[string]int64{}
	grandTotal := decimal.Zero
	var txnCount int64
	for _, b := range buckets {
		amount, err := decimal.NewFromString(b.TotalAmount)
		if err != nil {
			amount = decimal.Zero
		}
		byNetwork[b.CardNetwork] = byNetwork[b.CardNetwork].Add(amount)
		byStage[b.LifecycleStage] += b.TxnCount
		grandTotal = grandTotal.Add(amount)
		txnCount += b.TxnCount
	}

	networkTotals := make(map[string]string, len(byNetwork))
	for network, total := range byNetwork {
		networkTotals[network] = total.StringFixed(2)
	}
	stageCounts := make(map[string]int64, len(byStage))
	for stage, count := range byStage {
		stageCounts[stage] = count
	}

	metrics := map[string]any{
		"total_amount":     grandTotal.StringFixed(2),
		"txn_count":        txnCount,
		"by_card_network":  networkTotals,
		"by_lifecycle_stage": stageCounts,
		"neighborhood_count": len(inputs.Evidence.Neighborhoods),
	}

	confidence := 0.5
	if len(buckets) > 1 {
		confidence = 0.75
	}

	return model.AgentResult{
		Agent:      model.AgentReconciliation,
		Summary:    fmt.Sprintf("Reconciled %d transactions totaling %s across %d card network(s).", txnCount, grandTotal.StringFixed(2), len(byNetwork)),
		Metrics:    metrics,
		Confidence: confidence,
		Rationale:  "volume_breakdown_aggregation",
	}
}
