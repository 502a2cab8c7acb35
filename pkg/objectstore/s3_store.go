package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend implements Backend using AWS S3 (or an S3-compatible endpoint
// such as MinIO/LocalStack).
type S3Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// S3Config configures an S3Backend.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint for MinIO/LocalStack
}

// NewS3Backend builds an S3Backend and verifies the target bucket enforces
// server-side encryption, failing closed at startup otherwise (§4.1 side
// effect: "a bucket without SSE fails startup").
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	backend := &S3Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}

	if err := backend.verifyEncryption(ctx); err != nil {
		return nil, err
	}
	return backend, nil
}

func (s *S3Backend) verifyEncryption(ctx context.Context) error {
	out, err := s.client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("objectstore: bucket %q encryption policy could not be confirmed: %w", s.bucket, err)
	}
	if out.ServerSideEncryptionConfiguration == nil || len(out.ServerSideEncryptionConfiguration.Rules) == 0 {
		return fmt.Errorf("objectstore: bucket %q has no server-side encryption rule configured", s.bucket)
	}
	return nil
}

// Put uploads data to key with mandatory server-side encryption.
func (s *S3Backend) Put(ctx context.Context, key string, data []byte) (string, error) {
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String("application/octet-stream"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: s3 put %q: %w", key, err)
	}
	if out.ETag != nil {
		return *out.ETag, nil
	}
	return "", nil
}

// Get downloads the bytes stored under key.
func (s *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: s3 get %q: %w", key, err)
	}
	defer result.Body.Close()
	return io.ReadAll(result.Body)
}

// Head returns size/etag for key without downloading its body.
func (s *S3Backend) Head(ctx context.Context, key string) (Metadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("objectstore: s3 head %q: %w", key, err)
	}
	meta := Metadata{}
	if out.ContentLength != nil {
		meta.Size = *out.ContentLength
	}
	if out.ETag != nil {
		meta.ETag = *out.ETag
	}
	return meta, nil
}
