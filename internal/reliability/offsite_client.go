// Package reliability provides offsite replication of update backups.
//
// The updater snapshots the working tree before every update; when offsite
// credentials are configured, the archive is also pushed to S3-compatible
// object storage so a failed device can be reconstructed.
package reliability

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// OffsiteClient wraps the AWS S3 SDK to talk to any S3-compatible endpoint
// (R2, MinIO, S3 proper).
type OffsiteClient struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// NewOffsiteClient creates a client for the given endpoint and bucket.
func NewOffsiteClient(endpoint, accessKeyID, secretAccessKey, bucketName string, log zerolog.Logger) (*OffsiteClient, error) {
	if endpoint == "" || accessKeyID == "" || secretAccessKey == "" || bucketName == "" {
		return nil, fmt.Errorf("offsite backup credentials incomplete")
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               endpoint,
			HostnameImmutable: true,
			SigningRegion:     "auto",
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10 MB parts
		u.Concurrency = 2             // the device link is narrow
	})

	return &OffsiteClient{
		client:   client,
		uploader: uploader,
		bucket:   bucketName,
		log:      log.With().Str("component", "offsite_client").Logger(),
	}, nil
}

// Upload pushes one archive to the bucket.
func (c *OffsiteClient) Upload(ctx context.Context, key string, reader io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	c.log.Info().Str("key", key).Msg("Starting offsite upload")

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   reader,
	})
	if err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	c.log.Info().Str("key", key).Msg("Offsite upload finished")
	return nil
}
