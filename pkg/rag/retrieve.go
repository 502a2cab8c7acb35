package rag

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
	"github.com/payscope/payscope/pkg/tenant"
)

// topTraversalSeeds bounds how many of the highest-scored vector hits seed
// the graph traversal.
const topTraversalSeeds = 5

// Retrieve implements retrieve(context) -> Evidence. Vector similarity
// runs first since its top-ranked transaction_pks seed the graph
// traversal; the graph traversal and time-series aggregation then run
// concurrently via errgroup, both already bound to scope's tenant.
func (e *Engine) Retrieve(ctx context.Context, scope *tenant.Scope, query string, tr model.TimeRange) (model.Evidence, error) {
	if scope == nil {
		return model.Evidence{}, payscopeerr.New(payscopeerr.KindTenantNotBound, "rag: Retrieve called without a bound tenant scope")
	}

	vectorHits, err := e.retrieveVectorHits(ctx, scope.BankID(), query, detectLifecycleStage(query))
	if err != nil {
		return model.Evidence{}, err
	}

	seeds := topTransactionIDs(vectorHits, topTraversalSeeds)

	var neighborhoods []model.EvidenceNeighborhood
	var volumeBuckets []model.EvidenceVolumeBucket

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if e.Graph == nil || len(seeds) == 0 {
			return nil
		}
		results, err := e.Graph.TraverseFromTransactions(gctx, scope.BankID(), seeds)
		if err != nil {
			return fmt.Errorf("rag: graph traversal: %w", err)
		}
		neighborhoods = make([]model.EvidenceNeighborhood, 0, len(results))
		for _, r := range results {
			neighborhoods = append(neighborhoods, model.EvidenceNeighborhood{
				TransactionID:  r.TransactionID,
				LifecycleStage: r.LifecycleStage,
				MerchantID:     r.MerchantID,
				Amount:         r.Amount,
			})
		}
		return nil
	})
	g.Go(func() error {
		if e.TimeSeries == nil {
			return nil
		}
		breakdown, err := e.TimeSeries.QueryVolumeBreakdown(gctx, scope, tr.From, tr.To)
		if err != nil {
			return fmt.Errorf("rag: time-series aggregation: %w", err)
		}
		volumeBuckets = make([]model.EvidenceVolumeBucket, 0, len(breakdown))
		for _, b := range breakdown {
			volumeBuckets = append(volumeBuckets, model.EvidenceVolumeBucket{
				CardNetwork:    b.SourceNetwork,
				LifecycleStage: b.LifecycleStage,
				TotalAmount:    b.TotalAmount,
				TxnCount:       b.Count,
			})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.Evidence{}, err
	}

	return model.Evidence{
		VectorHits:    vectorHits,
		Neighborhoods: neighborhoods,
		VolumeBuckets: volumeBuckets,
	}, nil
}

func (e *Engine) retrieveVectorHits(ctx context.Context, bankID, query string, lifecycleStage model.LifecycleStage) ([]model.EvidenceVectorHit, error) {
	if e.Vector == nil || e.Embedder == nil {
		return nil, nil
	}
	embedding, err := e.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		e.logger().Warn("rag: query embedding failed, continuing without vector evidence", "error", err)
		return nil, nil
	}
	matches, err := e.Vector.Query(ctx, bankID, lifecycleStage, embedding, e.topK())
	if err != nil {
		return nil, fmt.Errorf("rag: vector query: %w", err)
	}
	hits := make([]model.EvidenceVectorHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, model.EvidenceVectorHit{
			TransactionID:  m.SourceID,
			LifecycleStage: string(m.LifecycleStage),
			Score:          float64(m.Score),
			Text:           m.Text,
		})
	}
	return hits, nil
}

// lifecycleQueryKeywords maps a query substring to the lifecycle stage the
// caller is asking about, the same keyword-prior shape intent.go uses for
// intent classification. A query matching none of them applies no stage
// filter and sees evidence across the whole lifecycle.
var lifecycleQueryKeywords = []struct {
	stage    model.LifecycleStage
	keywords []string
}{
	{model.StageAuth, []string{"authorization", "authorized", "auth"}},
	{model.StageClearing, []string{"clearing", "cleared"}},
	{model.StageSettlement, []string{"settlement", "settled"}},
}

// detectLifecycleStage implements the lifecycle_stage half of §4.11's
// "vector similarity with bank_id and lifecycle_stage filters".
func detectLifecycleStage(query string) model.LifecycleStage {
	lower := strings.ToLower(query)
	for _, lk := range lifecycleQueryKeywords {
		for _, kw := range lk.keywords {
			if strings.Contains(lower, kw) {
				return lk.stage
			}
		}
	}
	return ""
}

func topTransactionIDs(hits []model.EvidenceVectorHit, limit int) []string {
	if len(hits) > limit {
		hits = hits[:limit]
	}
	ids := make([]string, 0, len(hits))
	seen := map[string]bool{}
	for _, h := range hits {
		if h.TransactionID == "" || seen[h.TransactionID] {
			continue
		}
		seen[h.TransactionID] = true
		ids = append(ids, h.TransactionID)
	}
	return ids
}
