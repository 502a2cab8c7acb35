package objectstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payscope/payscope/pkg/objectstore"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	backend, err := objectstore.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := objectstore.RawKey("bank-1", "artifact-1", "report.csv")
	data := []byte("transaction_id,amount\nT1,10.00\n")

	etag, err := backend.Put(ctx, key, data)
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	got, err := backend.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	meta, err := backend.Head(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), meta.Size)
}

func TestFileBackend_GetMissingKeyErrors(t *testing.T) {
	backend, err := objectstore.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	_, err = backend.Get(context.Background(), objectstore.RawKey("bank-1", "artifact-missing", "x.csv"))
	assert.Error(t, err)
}

func TestRawKey_IsDeterministicAndBankScoped(t *testing.T) {
	k1 := objectstore.RawKey("bank-1", "artifact-1", "rows.csv")
	k2 := objectstore.RawKey("bank-2", "artifact-1", "rows.csv")
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, k1, objectstore.RawKey("bank-1", "artifact-1", "rows.csv"))
}

func TestExtractedKey_IsDeterministic(t *testing.T) {
	k := objectstore.ExtractedKey("artifact-1")
	assert.Equal(t, filepath.ToSlash(k), "extracted/artifact-1/intermediate.json")
}
