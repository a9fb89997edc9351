package artifacts

import (
	"context"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Mirror uploads artifacts to an S3 bucket using the multipart upload
// manager, the same combination the teacher's go.mod anticipated for an
// S3-backed vault but never implemented. Here it mirrors plan, manifest,
// and log artifacts one-way: local disk stays the source of truth, S3
// is a best-effort off-site copy.
type S3Mirror struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

var _ Mirror = (*S3Mirror)(nil)

// S3MirrorConfig configures an S3Mirror.
type S3MirrorConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional, for S3-compatible stores
	AccessKeyID     string // optional static credentials; empty uses the default chain
	SecretAccessKey string
}

// NewS3Mirror builds an S3Mirror from cfg, resolving AWS credentials
// either from cfg's static key pair or the SDK's default chain
// (environment, shared config, IMDS).
func NewS3Mirror(ctx context.Context, cfg S3MirrorConfig) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 mirror requires a bucket name")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
	})

	return &S3Mirror{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// Upload puts r under bucket/prefix/key via the multipart manager, which
// transparently falls back to a single PutObject for small artifacts.
func (m *S3Mirror) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	fullKey := key
	if m.prefix != "" {
		fullKey = m.prefix + "/" + key
	}

	_, err := m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &m.bucket,
		Key:    &fullKey,
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading %s to s3://%s/%s: %w", key, m.bucket, fullKey, err)
	}
	return nil
}
