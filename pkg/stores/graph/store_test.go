package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/stores/graph"
)

func TestEdgeID_DeterministicAndOrderSensitive(t *testing.T) {
	a := graph.EdgeID("bank-1|txn-1|v1", model.StageAuth, model.StageClearing)
	b := graph.EdgeID("bank-1|txn-1|v1", model.StageAuth, model.StageClearing)
	assert.Equal(t, a, b)

	c := graph.EdgeID("bank-1|txn-1|v1", model.StageClearing, model.StageAuth)
	assert.NotEqual(t, a, c)
}

func TestEdgeID_DistinctPerTransaction(t *testing.T) {
	a := graph.EdgeID("bank-1|txn-1|v1", model.StageAuth, model.StageClearing)
	b := graph.EdgeID("bank-1|txn-2|v1", model.StageAuth, model.StageClearing)
	assert.NotEqual(t, a, b)
}

func TestMergeLifecycleEdge_RejectsOutOfOrder(t *testing.T) {
	store := graph.New(nil)
	err := store.MergeLifecycleEdge(nil, "bank-1", "txn-1", "v1", model.StageSettlement, model.StageAuth)
	assert.Error(t, err)
}
