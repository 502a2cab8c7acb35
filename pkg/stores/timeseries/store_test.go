package timeseries_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payscope/payscope/pkg/stores/timeseries"
	"github.com/payscope/payscope/pkg/tenant"
)

func TestAppendVolume_RequiresBoundScope(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := timeseries.New(db)
	err = store.AppendVolume(context.Background(), nil, timeseries.VolumeBucket{
		BucketTime: time.Now(), BankID: "bank-1", SourceNetwork: "visa", LifecycleStage: "AUTH", Count: 1,
	})
	assert.Error(t, err)
}

func TestAppendVolume_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("SELECT set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO transaction_volume").WillReturnResult(sqlmock.NewResult(1, 1))

	scope, err := tenant.Acquire(context.Background(), db, "bank-1")
	require.NoError(t, err)
	defer func() { _ = scope.Release() }()

	store := timeseries.New(db)
	err = store.AppendVolume(context.Background(), scope, timeseries.VolumeBucket{
		BucketTime: time.Now(), BankID: "bank-1", SourceNetwork: "visa", LifecycleStage: "AUTH", Count: 1, TotalAmount: "100.00",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
