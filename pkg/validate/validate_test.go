package validate_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
	"github.com/payscope/payscope/pkg/validate"
)

func TestValidateRow_HappyPath(t *testing.T) {
	txn, rowErr := validate.ValidateRow(validate.RawRow{
		TransactionID: "T1", Amount: "100.125", Currency: "usd",
		TimestampUTC: "2026-07-31T10:00:00Z", LifecycleStage: "auth", BankID: "bank-1",
	})
	require.Nil(t, rowErr)
	assert.Equal(t, "USD", txn.Currency)
	assert.Equal(t, model.StageAuth, txn.LifecycleStage)
	assert.True(t, txn.Amount.Equal(txn.Amount.RoundBank(6)))
}

func TestValidateRow_RoundsHalfToEven(t *testing.T) {
	txn, rowErr := validate.ValidateRow(validate.RawRow{
		TransactionID: "T1", Amount: "2.0000005", Currency: "USD",
		TimestampUTC: "2026-07-31T10:00:00Z", LifecycleStage: "AUTH", BankID: "bank-1",
	})
	require.Nil(t, rowErr)
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("2.000000")),
		"banker's rounding must round the halfway digit to the nearest even value, got %s", txn.Amount)
}

func TestValidateRow_ZeroAmountAccepted(t *testing.T) {
	_, rowErr := validate.ValidateRow(validate.RawRow{
		TransactionID: "T1", Amount: "0", Currency: "USD",
		TimestampUTC: "2026-07-31T10:00:00Z", LifecycleStage: "AUTH",
	})
	assert.Nil(t, rowErr)
}

func TestValidateRow_NegativeAmountRejectedUnlessCredit(t *testing.T) {
	_, rowErr := validate.ValidateRow(validate.RawRow{
		TransactionID: "T1", Amount: "-5.00", Currency: "USD",
		TimestampUTC: "2026-07-31T10:00:00Z", LifecycleStage: "AUTH",
	})
	require.NotNil(t, rowErr)
	assert.Equal(t, payscopeerr.KindValidationRowFailed, rowErr.Kind)

	_, rowErr = validate.ValidateRow(validate.RawRow{
		TransactionID: "T1", Amount: "-5.00", Currency: "USD",
		TimestampUTC: "2026-07-31T10:00:00Z", LifecycleStage: "AUTH", IsCredit: true,
	})
	assert.Nil(t, rowErr)
}

func TestValidateRow_InvalidCurrencyRejected(t *testing.T) {
	_, rowErr := validate.ValidateRow(validate.RawRow{
		TransactionID: "T1", Amount: "5.00", Currency: "ZZZ",
		TimestampUTC: "2026-07-31T10:00:00Z", LifecycleStage: "AUTH",
	})
	require.NotNil(t, rowErr)
}

func TestValidateRow_TzLessTimestampRejected(t *testing.T) {
	_, rowErr := validate.ValidateRow(validate.RawRow{
		TransactionID: "T1", Amount: "5.00", Currency: "USD",
		TimestampUTC: "2026-07-31 10:00:00", LifecycleStage: "AUTH",
	})
	require.NotNil(t, rowErr)
}

func TestDedupe_KeepsHighestConfidence(t *testing.T) {
	t1 := model.CanonicalTransaction{TransactionID: "T1", LifecycleStage: model.StageAuth, ConfidenceScore: 0.6, TimestampUTC: time.Now()}
	t2 := model.CanonicalTransaction{TransactionID: "T1", LifecycleStage: model.StageAuth, ConfidenceScore: 0.9, TimestampUTC: time.Now()}
	out := validate.Dedupe([]model.CanonicalTransaction{t1, t2})
	require.Len(t, out, 1)
	assert.Equal(t, 0.9, out[0].ConfidenceScore)
}

func TestDedupe_TiesBrokenByEarliestTimestamp(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	t1 := model.CanonicalTransaction{TransactionID: "T1", LifecycleStage: model.StageAuth, ConfidenceScore: 0.9, TimestampUTC: now}
	t2 := model.CanonicalTransaction{TransactionID: "T1", LifecycleStage: model.StageAuth, ConfidenceScore: 0.9, TimestampUTC: earlier}
	out := validate.Dedupe([]model.CanonicalTransaction{t1, t2})
	require.Len(t, out, 1)
	assert.Equal(t, earlier, out[0].TimestampUTC)
}

func TestDedupe_DistinctLifecycleStagesKept(t *testing.T) {
	auth := model.CanonicalTransaction{TransactionID: "T1", LifecycleStage: model.StageAuth, ConfidenceScore: 0.9, TimestampUTC: time.Now()}
	clearing := model.CanonicalTransaction{TransactionID: "T1", LifecycleStage: model.StageClearing, ConfidenceScore: 0.9, TimestampUTC: time.Now()}
	out := validate.Dedupe([]model.CanonicalTransaction{auth, clearing})
	assert.Len(t, out, 2)
}

func TestDedupe_IsIdempotent(t *testing.T) {
	rows := []model.CanonicalTransaction{
		{TransactionID: "T1", LifecycleStage: model.StageAuth, ConfidenceScore: 0.6, TimestampUTC: time.Now()},
		{TransactionID: "T1", LifecycleStage: model.StageAuth, ConfidenceScore: 0.9, TimestampUTC: time.Now()},
		{TransactionID: "T2", LifecycleStage: model.StageClearing, ConfidenceScore: 0.8, TimestampUTC: time.Now()},
	}
	once := validate.Dedupe(rows)
	twice := validate.Dedupe(once)
	assert.Equal(t, once, twice)
}
