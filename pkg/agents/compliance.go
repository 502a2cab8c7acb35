package agents

import (
	"context"
	"fmt"

	"github.com/payscope/payscope/pkg/model"
)

// concentrationFlagThreshold is the share of retrieved transactions a
// single merchant must account for before ComplianceAgent flags it.
const concentrationFlagThreshold = 0.5

// ComplianceAgent screens the retrieved merchant neighborhood for
// concentration risk, joining FraudAgent on ANOMALY-intent queries.
type ComplianceAgent struct{}

func NewComplianceAgent() *ComplianceAgent { return &ComplianceAgent{} }

func (a *ComplianceAgent) Name() model.AgentName { return model.AgentCompliance }

func (a *ComplianceAgent) Run(ctx context.Context, taskID string, inputs Inputs) model.AgentResult {
	neighborhoods := inputs.Evidence.Neighborhoods
	if len(neighborhoods) == 0 {
		return model.AgentResult{
			Agent:      model.AgentCompliance,
			Summary:    "No merchant neighborhood evidence was retrieved to assess concentration risk.",
			Metrics:    map[string]any{},
			Confidence: 0.15,
			Rationale:  "empty_neighborhood_evidence",
		}
	}

	counts := map[string]int{}
	for _, n := range neighborhoods {
		counts[n.MerchantID]++
	}

	var topMerchant string
	var topCount int
	for merchant, count := range counts {
		if count > topCount {
			topMerchant, topCount = merchant, count
		}
	}
	concentration := float64(topCount) / float64(len(neighborhoods))
	flagged := concentration >= concentrationFlagThreshold

	return model.AgentResult{
		Agent:   model.AgentCompliance,
		Summary: fmt.Sprintf("Top merchant %q accounts for %.0f%% of retrieved transactions across %d distinct merchants.", topMerchant, concentration*100, len(counts)),
		Metrics: map[string]any{
			"distinct_merchants":          len(counts),
			"top_merchant_id":             topMerchant,
			"top_merchant_concentration":  concentration,
			"concentration_flagged":       flagged,
		},
		Confidence: 0.6,
		Rationale:  "merchant_concentration_heuristic",
	}
}
