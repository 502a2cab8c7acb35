package agents

import (
	"context"
	"fmt"
	"sort"

	"github.com/payscope/payscope/pkg/model"
)

// spikeThreshold is the multiple-of-mean a bucket's transaction count must
// reach or exceed to be flagged as a volume anomaly.
const spikeThreshold = 2.0

// FraudAgent flags volume buckets that spike well past the mean of the
// retrieved window, and surfaces the vector hits that most resemble the
// query's described pattern.
type FraudAgent struct{}

func NewFraudAgent() *FraudAgent { return &FraudAgent{} }

func (a *FraudAgent) Name() model.AgentName { return model.AgentFraud }

func (a *FraudAgent) Run(ctx context.Context, taskID string, inputs Inputs) model.AgentResult {
	buckets := inputs.Evidence.VolumeBuckets
	if len(buckets) == 0 {
		return model.AgentResult{
			Agent:      model.AgentFraud,
			Summary:    "No transaction volume evidence was available to assess for anomalies.",
			Metrics:    map[string]any{},
			Confidence: 0.15,
			Rationale:  "empty_volume_evidence",
		}
	}

	var total int64
	for _, b := range buckets {
		total += b.TxnCount
	}
	mean := float64(total) / float64(len(buckets))

	type spike struct {
		bucket model.EvidenceVolumeBucket
		ratio  float64
	}
	var spikes []spike
	for _, b := range buckets {
		if mean == 0 {
			continue
		}
		ratio := float64(b.TxnCount) / mean
		if ratio >= spikeThreshold {
			spikes = append(spikes, spike{bucket: b, ratio: ratio})
		}
	}
	sort.Slice(spikes, func(i, j int) bool { return spikes[i].ratio > spikes[j].ratio })

	metrics := map[string]any{
		"mean_txn_count":  mean,
		"bucket_count":    len(buckets),
		"spike_count":     len(spikes),
		"anomalous_hits":  len(inputs.Evidence.VectorHits),
	}
	if len(spikes) > 0 {
		top := spikes[0]
		metrics["top_spike_card_network"] = top.bucket.CardNetwork
		metrics["top_spike_lifecycle_stage"] = top.bucket.LifecycleStage
		metrics["top_spike_ratio"] = top.ratio
	}

	confidence := 0.4 + 0.1*float64(len(spikes))
	if confidence > 0.95 {
		confidence = 0.95
	}

	summary := fmt.Sprintf("Scanned %d volume buckets; %d exceeded %.1fx the mean transaction count.", len(buckets), len(spikes), spikeThreshold)
	if len(spikes) > 0 {
		summary += fmt.Sprintf(" Largest spike: %s/%s at %.1fx baseline.", spikes[0].bucket.CardNetwork, spikes[0].bucket.LifecycleStage, spikes[0].ratio)
	}

	return model.AgentResult{
		Agent:      model.AgentFraud,
		Summary:    summary,
		Metrics:    metrics,
		Confidence: confidence,
		Rationale:  "volume_spike_heuristic",
	}
}
