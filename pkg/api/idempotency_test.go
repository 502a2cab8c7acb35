package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyMiddleware_ReplaysCachedResponse(t *testing.T) {
	store := NewIdempotencyStore(time.Minute)
	calls := 0
	handler := IdempotencyMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))

	ts := httptest.NewServer(handler)
	defer ts.Close()

	req := func() *http.Request {
		r, err := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader("{}"))
		require.NoError(t, err)
		r.Header.Set("Idempotency-Key", "key-1")
		return r
	}

	resp1, err := ts.Client().Do(req())
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp1.StatusCode)
	resp1.Body.Close()

	resp2, err := ts.Client().Do(req())
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp2.StatusCode)
	resp2.Body.Close()

	assert.Equal(t, 1, calls, "second request with the same key must not re-invoke the handler")
}

func TestIdempotencyMiddleware_DistinctKeysBothExecute(t *testing.T) {
	store := NewIdempotencyStore(time.Minute)
	calls := 0
	handler := IdempotencyMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	ts := httptest.NewServer(handler)
	defer ts.Close()

	for _, key := range []string{"a", "b"} {
		r, err := http.NewRequest(http.MethodPost, ts.URL, nil)
		require.NoError(t, err)
		r.Header.Set("Idempotency-Key", key)
		resp, err := ts.Client().Do(r)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, 2, calls)
}

func TestIdempotencyMiddleware_MissingKeyAlwaysExecutes(t *testing.T) {
	store := NewIdempotencyStore(time.Minute)
	calls := 0
	handler := IdempotencyMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	ts := httptest.NewServer(handler)
	defer ts.Close()

	for i := 0; i < 2; i++ {
		resp, err := ts.Client().Post(ts.URL, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, 2, calls)
}
