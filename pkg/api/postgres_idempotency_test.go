package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPostgresIdempotencyStore_Init(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS idempotency_keys").WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPostgresIdempotencyStore(db, time.Hour)
	require.NoError(t, store.Init(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIdempotencyStore_SetThenCheckRoundTrips(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresIdempotencyStore(db, time.Hour)

	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("key-1", http.StatusOK, []byte("{}"), []byte("body")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	store.Set("key-1", http.StatusOK, nil, []byte("body"))

	rows := sqlmock.NewRows([]string{"status_code", "headers", "body", "cached_at"}).
		AddRow(http.StatusOK, []byte("{}"), []byte("body"), time.Now())
	mock.ExpectQuery("SELECT status_code, headers, body, cached_at FROM idempotency_keys").
		WithArgs("key-1").
		WillReturnRows(rows)

	cached, found := store.Check("key-1")
	require.True(t, found)
	require.Equal(t, http.StatusOK, cached.StatusCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIdempotencyStore_CheckMissReturnsFalse(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresIdempotencyStore(db, time.Hour)

	mock.ExpectQuery("SELECT status_code, headers, body, cached_at FROM idempotency_keys").
		WithArgs("missing").
		WillReturnError(sqlmock.ErrCancelled)

	_, found := store.Check("missing")
	require.False(t, found)
}
