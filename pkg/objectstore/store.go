// Package objectstore implements the object store gateway (C1): a thin,
// deterministic-key abstraction over S3/GCS used to hold raw uploads and
// the pipeline's intermediate/normalized JSON artifacts.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

func etagFor(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Metadata describes an object without fetching its bytes.
type Metadata struct {
	Size int64
	ETag string
}

// Backend defines the contract every object store implementation
// (S3, GCS) must satisfy. Keys are caller-supplied and deterministic;
// the backend never rewrites or hashes them.
type Backend interface {
	// Put persists data under key with server-side encryption and returns
	// the resulting ETag.
	Put(ctx context.Context, key string, data []byte) (etag string, err error)
	// Get retrieves the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Head returns size/etag for key without transferring its body.
	Head(ctx context.Context, key string) (Metadata, error)
}

// RawKey builds the deterministic key for an uploaded artifact.
func RawKey(bankID, artifactID, filename string) string {
	return fmt.Sprintf("raw/%s/%s/%s", bankID, artifactID, filename)
}

// ExtractedKey builds the deterministic key for an artifact's extracted
// intermediate document.
func ExtractedKey(artifactID string) string {
	return fmt.Sprintf("extracted/%s/intermediate.json", artifactID)
}

// NormalizedKey builds the deterministic key for an artifact's normalized
// canonical transactions.
func NormalizedKey(artifactID string) string {
	return fmt.Sprintf("normalized/%s/transactions.json", artifactID)
}

// TaggedKey builds the deterministic key for an artifact's layout-tagged
// elements, the hand-off point between the tagger and the mapper.
func TaggedKey(artifactID string) string {
	return fmt.Sprintf("tagged/%s/elements.json", artifactID)
}
