package rag

import (
	"context"

	"github.com/payscope/payscope/pkg/agents"
	"github.com/payscope/payscope/pkg/model"
)

// routingTable is the fixed intent-to-agent mapping from the glossary.
var routingTable = map[model.Intent][]model.AgentName{
	model.IntentAnomaly:  {model.AgentFraud, model.AgentCompliance},
	model.IntentCompare:  {model.AgentReconciliation},
	model.IntentForecast: {model.AgentForecasting},
	model.IntentWhatIf:   {model.AgentSimulation},
	model.IntentDescribe: {model.AgentReconciliation},
}

// Dispatch implements dispatch(intent, evidence) -> [AgentResult]. Every
// agent is bounded by the engine's agent timeout; an agent that doesn't
// return in time is recorded with a timeout rationale rather than left to
// run unbounded.
func (e *Engine) Dispatch(ctx context.Context, intent model.Intent, evidence model.Evidence, taskID, query string, tr model.TimeRange, bankID string) []model.AgentResult {
	names := routingTable[intent]
	results := make([]model.AgentResult, 0, len(names))
	inputs := agents.Inputs{BankID: bankID, Query: query, TimeRange: tr, Evidence: evidence}

	for _, name := range names {
		agent, ok := e.Agents[name]
		if !ok {
			continue
		}
		results = append(results, e.runAgentWithTimeout(ctx, agent, taskID, inputs))
	}
	return results
}

func (e *Engine) runAgentWithTimeout(ctx context.Context, agent agents.Agent, taskID string, inputs agents.Inputs) model.AgentResult {
	actx, cancel := context.WithTimeout(ctx, e.agentTimeout())
	defer cancel()

	resultCh := make(chan model.AgentResult, 1)
	go func() {
		resultCh <- agent.Run(actx, taskID, inputs)
	}()

	select {
	case result := <-resultCh:
		return result
	case <-actx.Done():
		return model.AgentResult{
			Agent:      agent.Name(),
			Summary:    "Agent exceeded its time budget and was cancelled.",
			Metrics:    map[string]any{},
			Confidence: 0,
			Rationale:  "timeout",
		}
	}
}
