// Package agents implements the agent suite (C12): Fraud, Reconciliation,
// Forecasting, Simulation, and Compliance agents. Every agent works only
// off the Evidence handed to it by the RAG dispatcher, so it never reads
// or writes outside the bound tenant scope that produced that evidence.
package agents

import (
	"context"

	"github.com/payscope/payscope/pkg/model"
)

// Inputs is what the dispatcher passes to every agent's Run.
type Inputs struct {
	BankID    string
	Query     string
	TimeRange model.TimeRange
	Evidence  model.Evidence
}

// Agent is one member of the fixed suite. Run must tolerate partial or
// empty evidence and report confidence accordingly rather than erroring.
type Agent interface {
	Name() model.AgentName
	Run(ctx context.Context, taskID string, inputs Inputs) model.AgentResult
}

// DefaultSuite builds every agent with its production configuration.
func DefaultSuite() map[model.AgentName]Agent {
	suite := []Agent{
		NewFraudAgent(),
		NewReconciliationAgent(),
		NewForecastingAgent(),
		NewSimulationAgent(),
		NewComplianceAgent(),
	}
	out := make(map[model.AgentName]Agent, len(suite))
	for _, a := range suite {
		out[a.Name()] = a
	}
	return out
}
