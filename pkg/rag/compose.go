package rag

import (
	"strings"

	"github.com/payscope/payscope/pkg/model"
)

// fieldPrecedence orders which agent's metrics win a field collision,
// per §4.11: fraud/anomaly fields from FraudAgent, comparison fields from
// ReconciliationAgent, forecast fields from ForecastingAgent.
var fieldPrecedence = []model.AgentName{
	model.AgentFraud,
	model.AgentCompliance,
	model.AgentReconciliation,
	model.AgentForecasting,
	model.AgentSimulation,
}

// emptyEvidenceConfidence is the ceiling compose returns when retrieval
// surfaced nothing, always below the 0.2 threshold the spec fixes.
const emptyEvidenceConfidence = 0.1

// Compose implements compose(results) -> StructuredResponse.
func Compose(intent model.Intent, evidence model.Evidence, results []model.AgentResult) model.StructuredResponse {
	agentsInvoked := make([]model.AgentName, 0, len(results))
	for _, r := range results {
		agentsInvoked = append(agentsInvoked, r.Agent)
	}

	if evidence.IsEmpty() {
		return model.StructuredResponse{
			Summary:       "No evidence was found for this query under the current tenant scope.",
			Metrics:       map[string]any{},
			Confidence:    emptyEvidenceConfidence,
			Intent:        intent,
			AgentsInvoked: agentsInvoked,
		}
	}

	byAgent := make(map[model.AgentName]model.AgentResult, len(results))
	for _, r := range results {
		byAgent[r.Agent] = r
	}

	metrics := map[string]any{}
	var summaryParts []string
	var forecast *model.Forecast
	minConfidence := 1.0
	haveConfidence := false

	for _, name := range fieldPrecedence {
		r, ok := byAgent[name]
		if !ok {
			continue
		}
		for k, v := range r.Metrics {
			if k == "forecast" {
				if f, ok := v.(*model.Forecast); ok {
					forecast = f
				}
				continue
			}
			if _, exists := metrics[k]; !exists {
				metrics[k] = v
			}
		}
		if r.Summary != "" {
			summaryParts = append(summaryParts, r.Summary)
		}
		if !haveConfidence || r.Confidence < minConfidence {
			minConfidence = r.Confidence
			haveConfidence = true
		}
	}

	if !haveConfidence {
		minConfidence = 0
	}

	return model.StructuredResponse{
		Summary:       strings.Join(summaryParts, " "),
		Metrics:       metrics,
		Forecast:      forecast,
		Confidence:    minConfidence,
		Intent:        intent,
		AgentsInvoked: agentsInvoked,
	}
}
