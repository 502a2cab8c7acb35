package vector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/stores/vector"
)

func TestDeterministicID_StableAndTenantSensitive(t *testing.T) {
	a := vector.DeterministicID("bank-1", "transaction", "txn-1")
	b := vector.DeterministicID("bank-1", "transaction", "txn-1")
	assert.Equal(t, a, b)

	c := vector.DeterministicID("bank-2", "transaction", "txn-1")
	assert.NotEqual(t, a, c)
}

func TestUpsert_RejectsRecordWithoutBankID(t *testing.T) {
	store := vector.New(nil)
	err := store.Upsert(context.Background(), []vector.Record{{SourceType: "transaction", SourceID: "txn-1"}})
	assert.Error(t, err)
}

func TestQuery_RejectsMissingBankID(t *testing.T) {
	store := vector.New(nil)
	_, err := store.Query(context.Background(), "", model.StageAuth, []float32{0.1, 0.2}, 10)
	assert.Error(t, err)
}
