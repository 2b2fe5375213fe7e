package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config locates the archive in an S3 or S3-compatible bucket.
// Credentials come from the AWS default chain.
type S3Config struct {
	Bucket string
	Prefix string
	// Region overrides the region from the default chain.
	Region string
	// Endpoint points at an S3-compatible provider such as MinIO or R2.
	Endpoint string
	// UsePathStyle puts the bucket in the path; most S3-compatible
	// providers need it.
	UsePathStyle bool
}

// Validate requires a bucket.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix/..." at the first slash.
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

// clientOptions applies the endpoint and addressing overrides.
func (c *S3Config) clientOptions(o *s3.Options) {
	if c.Endpoint != "" {
		o.BaseEndpoint = aws.String(c.Endpoint)
	}
	o.UsePathStyle = c.UsePathStyle
}

// NewS3Factory builds a Lode store factory over one shared S3 client.
func NewS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var loadOpts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s3cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("load AWS config: %w", err), s3cfg.Bucket)
	}
	client := s3.NewFromConfig(awsCfg, s3cfg.clientOptions)
	storeCfg := lodes3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix}

	return func() (lode.Store, error) {
		return lodes3.New(client, storeCfg)
	}, nil
}

// NewS3Client creates an archive client on the S3 backend.
func NewS3Client(ctx context.Context, dataset string, s3cfg S3Config) (*Client, error) {
	factory, err := NewS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return newClient(dataset, BackendS3, factory)
}
