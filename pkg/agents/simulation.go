package agents

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/payscope/payscope/pkg/model"
)

var percentDeltaPattern = regexp.MustCompile(`(-?\d+(\.\d+)?)\s*%`)

// SimulationAgent answers WHAT_IF queries by applying a percentage delta,
// parsed from the query text, to the retrieved volume baseline. Absent a
// parseable delta it reports the baseline unchanged with low confidence
// rather than inventing a scenario.
type SimulationAgent struct{}

func NewSimulationAgent() *SimulationAgent { return &SimulationAgent{} }

func (a *SimulationAgent) Name() model.AgentName { return model.AgentSimulation }

func (a *SimulationAgent) Run(ctx context.Context, taskID string, inputs Inputs) model.AgentResult {
	buckets := inputs.Evidence.VolumeBuckets
	if len(buckets) == 0 {
		return model.AgentResult{
			Agent:      model.AgentSimulation,
			Summary:    "No baseline volume evidence was retrieved to simulate against.",
			Metrics:    map[string]any{},
			Confidence: 0.1,
			Rationale:  "empty_volume_evidence",
		}
	}

	var baseline int64
	for _, b := range buckets {
		baseline += b.TxnCount
	}

	deltaPct, ok := extractPercentDelta(inputs.Query)
	simulated := float64(baseline) * (1 + deltaPct/100)

	confidence := 0.55
	if !ok {
		confidence = 0.25
	}

	return model.AgentResult{
		Agent:   model.AgentSimulation,
		Summary: fmt.Sprintf("Simulated a %.1f%% change against a baseline of %d transactions, yielding %.0f.", deltaPct, baseline, simulated),
		Metrics: map[string]any{
			"baseline_txn_count":  baseline,
			"delta_percent":       deltaPct,
			"simulated_txn_count": simulated,
		},
		Confidence: confidence,
		Rationale:  "percent_delta_scenario",
	}
}

func extractPercentDelta(query string) (float64, bool) {
	match := percentDeltaPattern.FindStringSubmatch(query)
	if match == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
