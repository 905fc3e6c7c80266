// Package blob provides object storage for case documents and export archives.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/lexia/casedesk/internal/core"
)

// S3Config holds connection settings for an S3-compatible object store.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// ForcePathStyle is required for MinIO and most non-AWS endpoints.
	ForcePathStyle bool
}

// S3Store implements core.BlobStore on an S3-compatible bucket.
type S3Store struct {
	client *s3.S3
	bucket string
}

// NewS3Store creates an S3Store from the given configuration.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		awsCfg = awsCfg.WithS3ForcePathStyle(true)
	}
	if cfg.AccessKeyID != "" {
		awsCfg = awsCfg.WithCredentials(
			credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	return &S3Store{
		client: s3.New(sess),
		bucket: cfg.Bucket,
	}, nil
}

// Fetch downloads the object at the given path.
func (s *S3Store) Fetch(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	defer func() {
		if closeErr := out.Body.Close(); closeErr != nil {
			_ = closeErr
		}
	}()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", path, err)
	}
	return body, nil
}

// Upload stores an object at the given path, overwriting any previous content.
func (s *S3Store) Upload(ctx context.Context, params core.UploadParams) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(params.Path),
		Body:   bytes.NewReader(params.Body),
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}

	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("put object %s: %w", params.Path, err)
	}
	return nil
}

// Sign generates a time-limited retrieval URL for the object at the given path.
func (s *S3Store) Sign(_ context.Context, path string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("sign ttl must be positive")
	}

	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})

	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", path, err)
	}
	return url, nil
}

var _ core.BlobStore = (*S3Store)(nil)
