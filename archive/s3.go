package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// largeObjectMinSize gates whether Promote uses the multipart manager
// uploader or a plain PutObject.
const largeObjectMinSize = 10 * 1024 * 1024

// S3Config names the bucket and optional explicit endpoint/credentials an
// S3Mover connects with (the glob_backend = "s3" configuration).
type S3Config struct {
	Bucket          string
	Region          string
	EndpointURL     string // non-empty for S3-compatible stores (e.g. minio)
	AccessKeyID     string
	SecretAccessKey string
}

// S3Mover archives checkpoint files to an S3 (or S3-compatible) bucket.
type S3Mover struct {
	client *s3.Client
	bucket string
}

// NewS3Mover connects to S3 per cfg. When EndpointURL is set it builds a
// client pointed at that endpoint with static credentials from
// AccessKeyID/SecretAccessKey (the minio-style self-hosted case);
// otherwise it loads the ambient AWS SDK default config chain.
func NewS3Mover(ctx context.Context, cfg S3Config) (*S3Mover, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: S3Config.Bucket is required")
	}

	if cfg.EndpointURL != "" {
		client := s3.NewFromConfig(aws.Config{Region: cfg.Region}, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		})
		return &S3Mover{client: client, bucket: cfg.Bucket}, nil
	}

	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("archive: couldn't load default AWS configuration: %w", err)
	}
	return &S3Mover{client: s3.NewFromConfig(sdkConfig), bucket: cfg.Bucket}, nil
}

func (m *S3Mover) Promote(ctx context.Context, localPath, archiveKey string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("archive: opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("archive: stat %s: %w", localPath, err)
	}

	if info.Size() >= largeObjectMinSize {
		uploader := manager.NewUploader(m.client, func(u *manager.Uploader) {
			u.PartSize = largeObjectMinSize
		})
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(archiveKey),
			Body:   f,
		})
		if err != nil {
			return fmt.Errorf("archive: multipart upload of %s to s3://%s/%s: %w", localPath, m.bucket, archiveKey, err)
		}
		return nil
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(archiveKey),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("archive: upload of %s to s3://%s/%s: %w", localPath, m.bucket, archiveKey, err)
	}
	return nil
}
