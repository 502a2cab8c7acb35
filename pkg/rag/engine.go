// Package rag implements the RAG query path (C11): intent classification,
// multi-store retrieval fanned out under the bound tenant scope, agent
// dispatch per a fixed routing table, and response composition.
package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/payscope/payscope/pkg/agents"
	"github.com/payscope/payscope/pkg/llm"
	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/stores/graph"
	"github.com/payscope/payscope/pkg/stores/timeseries"
	"github.com/payscope/payscope/pkg/stores/vector"
	"github.com/payscope/payscope/pkg/tenant"
)

// defaultAgentTimeout is the per-agent wall-clock bound the dispatcher
// enforces when Engine.AgentTimeout is unset.
const defaultAgentTimeout = 10 * time.Second

// defaultTopK is the vector similarity fan-out width when Engine.TopK is unset.
const defaultTopK = 10

// VectorSearcher is the subset of *vector.Store retrieve needs, narrowed
// for testability.
type VectorSearcher interface {
	Query(ctx context.Context, bankID string, lifecycleStage model.LifecycleStage, embedding []float32, topK uint32) ([]vector.Match, error)
}

// GraphTraverser is the subset of *graph.Store retrieve needs.
type GraphTraverser interface {
	TraverseFromTransactions(ctx context.Context, bankID string, transactionIDs []string) ([]graph.NeighborhoodResult, error)
}

// VolumeAggregator is the subset of *timeseries.Store retrieve needs.
type VolumeAggregator interface {
	QueryVolumeBreakdown(ctx context.Context, scope *tenant.Scope, from, to time.Time) ([]timeseries.NetworkStageBreakdown, error)
}

// Engine wires the classify/retrieve/dispatch/compose pipeline. Every
// field is optional except Agents: a nil Vector/Graph/TimeSeries/Embedder/
// IntentClient degrades that stage's contribution rather than erroring,
// the same "unavailable dependency degrades gracefully" posture as the
// mapper's model-then-rule fallback.
type Engine struct {
	Vector       VectorSearcher
	Graph        GraphTraverser
	TimeSeries   VolumeAggregator
	Embedder     llm.Embedder
	IntentClient llm.Client
	Agents       map[model.AgentName]agents.Agent
	AgentTimeout time.Duration
	TopK         uint32
	Logger       *slog.Logger
}

func (e *Engine) agentTimeout() time.Duration {
	if e.AgentTimeout > 0 {
		return e.AgentTimeout
	}
	return defaultAgentTimeout
}

func (e *Engine) topK() uint32 {
	if e.TopK > 0 {
		return e.TopK
	}
	return defaultTopK
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
