package export

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/config"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
)

// Uploader stores exports in an S3 compatible bucket
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewUploader creates an uploader from the bucket settings. A custom
// endpoint (MinIO, R2) switches to path-style addressing.
func NewUploader(cfg config.S3Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is not configured")
	}

	awsCfg := aws.Config{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.AccessSecret, ""),
		),
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &Uploader{client: client, bucket: cfg.Bucket, prefix: "exports"}, nil
}

// Upload puts data under prefix/name and returns the object key
func (u *Uploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(u.prefix, name)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentType),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to S3 bucket: %w", key, err)
	}
	logger.Info("Export uploaded", "bucket", u.bucket, "key", key, "bytes", len(data))
	return key, nil
}
