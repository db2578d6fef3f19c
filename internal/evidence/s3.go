package evidence

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds an *s3.Client from the environment's default AWS
// credential chain, optionally pinned to static keys when accessKey is
// non-empty (used for S3-compatible dev stacks like MinIO that don't run an
// instance-metadata service).
func NewS3Client(ctx context.Context, region, accessKey, secretKey string) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("evidence: loading aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// S3Uploader offloads built packs to object storage, for deployments that
// don't want evidence archives flowing back through the API process after
// generation (e.g. handing a regulator a pre-signed URL instead of a
// streamed response body).
type S3Uploader struct {
	client *s3.Client
	bucket string
}

// NewS3Uploader builds an uploader targeting bucket.
func NewS3Uploader(client *s3.Client, bucket string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket}
}

// Upload stores archive under key filename and returns the object key.
func (u *S3Uploader) Upload(ctx context.Context, filename string, archive []byte) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(filename),
		Body:        bytes.NewReader(archive),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", fmt.Errorf("evidence: uploading pack to s3: %w", err)
	}
	return filename, nil
}
