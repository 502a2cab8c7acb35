package agents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payscope/payscope/pkg/agents"
	"github.com/payscope/payscope/pkg/model"
)

func TestDefaultSuite_RegistersAllFiveAgents(t *testing.T) {
	suite := agents.DefaultSuite()
	require.Len(t, suite, 5)
	for _, name := range []model.AgentName{model.AgentFraud, model.AgentReconciliation, model.AgentForecasting, model.AgentSimulation, model.AgentCompliance} {
		_, ok := suite[name]
		assert.True(t, ok, "missing agent %s", name)
	}
}

func TestFraudAgent_EmptyEvidenceLowConfidence(t *testing.T) {
	a := agents.NewFraudAgent()
	result := a.Run(context.Background(), "t1", agents.Inputs{BankID: "bank-1"})
	assert.Less(t, result.Confidence, 0.2)
}

func TestFraudAgent_FlagsVolumeSpike(t *testing.T) {
	a := agents.NewFraudAgent()
	result := a.Run(context.Background(), "t1", agents.Inputs{
		BankID: "bank-1",
		Evidence: model.Evidence{
			VolumeBuckets: []model.EvidenceVolumeBucket{
				{CardNetwork: "VISA", LifecycleStage: "AUTH", TxnCount: 10},
				{CardNetwork: "VISA", LifecycleStage: "AUTH", TxnCount: 12},
				{CardNetwork: "VISA", LifecycleStage: "AUTH", TxnCount: 100},
			},
		},
	})
	assert.Equal(t, 1, result.Metrics["spike_count"])
}

func TestReconciliationAgent_SumsAcrossNetworks(t *testing.T) {
	a := agents.NewReconciliationAgent()
	result := a.Run(context.Background(), "t1", agents.Inputs{
		Evidence: model.Evidence{
			VolumeBuckets: []model.EvidenceVolumeBucket{
				{CardNetwork: "VISA", LifecycleStage: "AUTH", TotalAmount: "100.00", TxnCount: 5},
				{CardNetwork: "MASTERCARD", LifecycleStage: "AUTH", TotalAmount: "50.00", TxnCount: 3},
			},
		},
	})
	assert.Equal(t, int64(8), result.Metrics["txn_count"])
	assert.Equal(t, "150.00", result.Metrics["total_amount"])
}

func TestForecastingAgent_DeterministicUnderSameInputs(t *testing.T) {
	a := agents.NewForecastingAgent()
	inputs := agents.Inputs{
		BankID: "bank-1",
		Evidence: model.Evidence{
			VolumeBuckets: []model.EvidenceVolumeBucket{
				{TxnCount: 10}, {TxnCount: 12}, {TxnCount: 14}, {TxnCount: 16},
			},
		},
	}
	r1 := a.Run(context.Background(), "fixed-task", inputs)
	r2 := a.Run(context.Background(), "fixed-task", inputs)
	assert.Equal(t, r1.Metrics["forecast"], r2.Metrics["forecast"])
}

func TestSimulationAgent_ParsesPercentDelta(t *testing.T) {
	a := agents.NewSimulationAgent()
	result := a.Run(context.Background(), "t1", agents.Inputs{
		Query: "what if volume increased by 20%",
		Evidence: model.Evidence{
			VolumeBuckets: []model.EvidenceVolumeBucket{{TxnCount: 100}},
		},
	})
	assert.Equal(t, 20.0, result.Metrics["delta_percent"])
	assert.Equal(t, 120.0, result.Metrics["simulated_txn_count"])
}

func TestComplianceAgent_FlagsConcentration(t *testing.T) {
	a := agents.NewComplianceAgent()
	result := a.Run(context.Background(), "t1", agents.Inputs{
		Evidence: model.Evidence{
			Neighborhoods: []model.EvidenceNeighborhood{
				{MerchantID: "M1"}, {MerchantID: "M1"}, {MerchantID: "M2"},
			},
		},
	})
	assert.Equal(t, true, result.Metrics["concentration_flagged"])
}
