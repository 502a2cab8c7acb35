package rag_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payscope/payscope/pkg/agents"
	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/rag"
	"github.com/payscope/payscope/pkg/stores/graph"
	"github.com/payscope/payscope/pkg/stores/timeseries"
	"github.com/payscope/payscope/pkg/stores/vector"
	"github.com/payscope/payscope/pkg/tenant"
)

type fakeVector struct {
	matches        []vector.Match
	err            error
	gotStageFilter model.LifecycleStage
}

func (f *fakeVector) Query(ctx context.Context, bankID string, lifecycleStage model.LifecycleStage, embedding []float32, topK uint32) ([]vector.Match, error) {
	f.gotStageFilter = lifecycleStage
	return f.matches, f.err
}

type fakeGraph struct {
	results []graph.NeighborhoodResult
}

func (f *fakeGraph) TraverseFromTransactions(ctx context.Context, bankID string, transactionIDs []string) ([]graph.NeighborhoodResult, error) {
	return f.results, nil
}

type fakeTimeSeries struct {
	breakdown []timeseries.NetworkStageBreakdown
}

func (f *fakeTimeSeries) QueryVolumeBreakdown(ctx context.Context, scope *tenant.Scope, from, to time.Time) ([]timeseries.NetworkStageBreakdown, error) {
	return f.breakdown, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func TestRetrieve_RequiresBoundScope(t *testing.T) {
	engine := &rag.Engine{}
	_, err := engine.Retrieve(context.Background(), nil, "q", model.TimeRange{})
	require.Error(t, err)
}

func TestClassifyIntent_AnomalyKeywordWinsRegardlessOfClient(t *testing.T) {
	engine := &rag.Engine{}
	got := engine.ClassifyIntent(context.Background(), "Why did fraud spike last week?")
	assert.Equal(t, model.IntentAnomaly, got.Intent)
}

func TestClassifyIntent_KeywordFallbackWhenNoClient(t *testing.T) {
	engine := &rag.Engine{}
	got := engine.ClassifyIntent(context.Background(), "compare this month versus last month")
	assert.Equal(t, model.IntentCompare, got.Intent)
}

func TestCompose_EmptyEvidenceYieldsLowConfidence(t *testing.T) {
	resp := rag.Compose(model.IntentDescribe, model.Evidence{}, nil)
	assert.Less(t, resp.Confidence, 0.2)
	assert.Empty(t, resp.AgentsInvoked)
}

func TestCompose_MergesByPrecedence(t *testing.T) {
	evidence := model.Evidence{VolumeBuckets: []model.EvidenceVolumeBucket{{TxnCount: 1}}}
	results := []model.AgentResult{
		{Agent: model.AgentReconciliation, Summary: "recon", Metrics: map[string]any{"total_amount": "100.00"}, Confidence: 0.8},
		{Agent: model.AgentFraud, Summary: "fraud", Metrics: map[string]any{"spike_count": 2}, Confidence: 0.5},
	}
	resp := rag.Compose(model.IntentAnomaly, evidence, results)
	assert.Equal(t, 2, resp.Metrics["spike_count"])
	assert.Equal(t, "100.00", resp.Metrics["total_amount"])
	assert.Equal(t, 0.5, resp.Confidence)
	assert.Contains(t, resp.AgentsInvoked, model.AgentFraud)
	assert.Contains(t, resp.AgentsInvoked, model.AgentReconciliation)
}

func TestDispatch_RoutesAnomalyToFraudAndCompliance(t *testing.T) {
	engine := &rag.Engine{Agents: agents.DefaultSuite()}
	results := engine.Dispatch(context.Background(), model.IntentAnomaly, model.Evidence{}, "task-1", "q", model.TimeRange{}, "bank-1")
	names := map[model.AgentName]bool{}
	for _, r := range results {
		names[r.Agent] = true
	}
	assert.True(t, names[model.AgentFraud])
	assert.True(t, names[model.AgentCompliance])
}

func TestDispatch_MissingAgentIsSkipped(t *testing.T) {
	engine := &rag.Engine{Agents: map[model.AgentName]agents.Agent{}}
	results := engine.Dispatch(context.Background(), model.IntentForecast, model.Evidence{}, "task-1", "q", model.TimeRange{}, "bank-1")
	assert.Empty(t, results)
}

func TestRetrieve_FansOutAcrossAllThreeStores(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("SELECT set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	scope, err := tenant.Acquire(context.Background(), db, "bank-1")
	require.NoError(t, err)
	defer scope.Release()

	engine := &rag.Engine{
		Vector:     &fakeVector{matches: []vector.Match{{ID: "v1", Score: 0.9, BankID: "bank-1", SourceID: "T1", LifecycleStage: model.StageAuth, Text: "hit"}}},
		Graph:      &fakeGraph{results: []graph.NeighborhoodResult{{TransactionID: "T1", LifecycleStage: "AUTH", MerchantID: "M1", Amount: "10.00"}}},
		TimeSeries: &fakeTimeSeries{breakdown: []timeseries.NetworkStageBreakdown{{SourceNetwork: "VISA", LifecycleStage: "AUTH", Count: 3, TotalAmount: "30.00"}}},
		Embedder:   fakeEmbedder{},
	}

	evidence, err := engine.Retrieve(context.Background(), scope, "why did fraud spike", model.TimeRange{})
	require.NoError(t, err)
	require.Len(t, evidence.VectorHits, 1)
	assert.Equal(t, "T1", evidence.VectorHits[0].TransactionID)
	assert.Equal(t, "AUTH", evidence.VectorHits[0].LifecycleStage)
	require.Len(t, evidence.Neighborhoods, 1)
	require.Len(t, evidence.VolumeBuckets, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetrieve_ThreadsLifecycleStageIntoVectorQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("SELECT set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	scope, err := tenant.Acquire(context.Background(), db, "bank-1")
	require.NoError(t, err)
	defer scope.Release()

	fv := &fakeVector{}
	engine := &rag.Engine{Vector: fv, Embedder: fakeEmbedder{}}

	_, err = engine.Retrieve(context.Background(), scope, "show me authorized transactions", model.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, model.StageAuth, fv.gotStageFilter)
}
