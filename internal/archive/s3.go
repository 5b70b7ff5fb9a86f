package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"factory-status-backend/config"
)

// S3Writer stores archive artifacts as objects in an S3-compatible bucket.
type S3Writer struct {
	client *minio.Client
	bucket string
}

// NewS3Writer builds the client and ensures the bucket exists.
func NewS3Writer(ctx context.Context, cfg *config.S3Config) (*S3Writer, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Printf("Archive bucket %q does not exist, creating...", cfg.Bucket)
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &S3Writer{client: client, bucket: cfg.Bucket}, nil
}

// Write uploads the batch as one JSON object. PutObject does not return
// until the object is stored, which satisfies the write-before-delete
// contract.
func (w *S3Writer) Write(ctx context.Context, name string, batch Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal archive batch: %w", err)
	}

	_, err = w.client.PutObject(ctx, w.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload archive object %q: %w", name, err)
	}
	return nil
}
