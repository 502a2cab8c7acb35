package objectstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/payscope/payscope/pkg/config"
)

// BackendKind selects which Backend implementation NewFromConfig builds.
type BackendKind string

const (
	BackendFile BackendKind = "file"
	BackendS3   BackendKind = "s3"
	BackendGCS  BackendKind = "gcs"
)

// NewFromConfig builds a Backend from the object store settings in cfg.
// OBJECT_STORE_ENDPOINT selects the backend: empty defaults to a local
// FileBackend (development), an "s3://" or "gs://" scheme selects S3 or
// GCS respectively, and a bare https endpoint is treated as an
// S3-compatible endpoint (MinIO/LocalStack).
func NewFromConfig(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch kindFor(cfg.ObjectStoreEndpoint) {
	case BackendGCS:
		return newGCSFromConfig(ctx, cfg)
	case BackendS3:
		return NewS3Backend(ctx, S3Config{
			Bucket:   cfg.ObjectStoreBucket,
			Endpoint: strings.TrimPrefix(cfg.ObjectStoreEndpoint, "s3://"),
		})
	default:
		return NewFileBackend("data/objectstore")
	}
}

func kindFor(endpoint string) BackendKind {
	switch {
	case endpoint == "":
		return BackendFile
	case strings.HasPrefix(endpoint, "gs://"):
		return BackendGCS
	default:
		return BackendS3
	}
}

var errGCSNotEnabled = fmt.Errorf("objectstore: GCS backend is not enabled in this build (build with -tags gcp)")
