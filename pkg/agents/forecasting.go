package agents

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/payscope/payscope/pkg/model"
)

// ForecastingAgent wraps a seasonal regression (trend + single-harmonic
// Fourier seasonality + residual interval) over the retrieved volume
// buckets, risk-adjusted by a graph propagation routine over the
// retrieved merchant neighborhoods. Both halves are side-effect free and
// deterministic under a fixed seed derived from (task_id, bank_id).
type ForecastingAgent struct{}

func NewForecastingAgent() *ForecastingAgent { return &ForecastingAgent{} }

func (a *ForecastingAgent) Name() model.AgentName { return model.AgentForecasting }

func (a *ForecastingAgent) Run(ctx context.Context, taskID string, inputs Inputs) model.AgentResult {
	buckets := inputs.Evidence.VolumeBuckets
	if len(buckets) == 0 {
		return model.AgentResult{
			Agent:      model.AgentForecasting,
			Summary:    "Insufficient volume history was retrieved to produce a forecast.",
			Metrics:    map[string]any{},
			Confidence: 0.1,
			Rationale:  "empty_volume_evidence",
		}
	}

	series := make([]float64, len(buckets))
	for i, b := range buckets {
		series[i] = float64(b.TxnCount)
	}

	mean := meanOf(series)
	trend := linearTrendSlope(series)
	seasonal := fourierSeasonal(series, 1)
	point := mean + trend*float64(len(series)) + seasonal

	spread := residualStdDev(series, mean)
	jitter := deterministicResidual(taskID, inputs.BankID)
	lower := point - spread - jitter
	upper := point + spread + jitter

	riskAdj := graphRiskPropagation(inputs.Evidence.Neighborhoods)
	point += riskAdj

	trendLabel := "flat"
	switch {
	case trend > 0.5:
		trendLabel = "rising"
	case trend < -0.5:
		trendLabel = "falling"
	}

	forecast := &model.Forecast{Point: point, LowerBound: lower, UpperBound: upper, Trend: trendLabel}

	return model.AgentResult{
		Agent:   model.AgentForecasting,
		Summary: fmt.Sprintf("Forecast next-window volume at %.1f (%s trend), graph-risk adjusted by %.2f.", point, trendLabel, riskAdj),
		Metrics: map[string]any{
			"forecast":              forecast,
			"trend_slope":           trend,
			"graph_risk_adjustment": riskAdj,
		},
		Confidence: confidenceFromHistory(len(series)),
		Rationale:  "seasonal_regression_plus_graph_risk",
	}
}

func linearTrendSlope(series []float64) float64 {
	n := float64(len(series))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func fourierSeasonal(series []float64, harmonic int) float64 {
	n := float64(len(series))
	if n == 0 {
		return 0
	}
	var sinSum, cosSum float64
	for i, y := range series {
		angle := 2 * math.Pi * float64(harmonic) * float64(i) / n
		sinSum += y * math.Sin(angle)
		cosSum += y * math.Cos(angle)
	}
	return math.Hypot(sinSum, cosSum) / n
}

func meanOf(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

func residualStdDev(series []float64, mean float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range series {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(series)))
}

// deterministicResidual derives a small seeded jitter from taskID/bankID,
// the same SHA-256-seeded-PRF shape as the orchestrator's backoff jitter,
// so identical evidence always forecasts the same interval.
func deterministicResidual(taskID, bankID string) float64 {
	hash := sha256.Sum256([]byte(taskID + "|" + bankID))
	basis := binary.BigEndian.Uint64(hash[:8])
	return float64(basis%1000) / 1000.0
}

// graphRiskPropagation scores how much of the retrieved neighborhood has
// not yet reached settlement, as a crude proxy for unresolved risk still
// propagating through the lifecycle graph.
func graphRiskPropagation(neighborhoods []model.EvidenceNeighborhood) float64 {
	if len(neighborhoods) == 0 {
		return 0
	}
	unsettled := 0
	for _, n := range neighborhoods {
		if n.LifecycleStage != string(model.StageSettlement) {
			unsettled++
		}
	}
	return float64(unsettled) / float64(len(neighborhoods))
}

func confidenceFromHistory(bucketCount int) float64 {
	c := 0.3 + 0.05*float64(bucketCount)
	if c > 0.9 {
		c = 0.9
	}
	return c
}
