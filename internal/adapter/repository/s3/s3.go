// Package s3 stores photos in any S3 API compatible bucket (AWS, Cloudflare R2,
// Ceph) through the AWS SDK.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dontpanicw/PhotoGallery/config"
	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"github.com/dontpanicw/PhotoGallery/internal/port"
	"go.uber.org/zap"
)

var _ port.ObjectStorage = (*PhotoS3Storage)(nil)

// API is the part of *s3.Client the storage uses.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type PhotoS3Storage struct {
	client API
	cfg    *config.Config
	log    *zap.Logger
}

func NewS3Storage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*PhotoS3Storage, error) {
	endpoint := endpointURL(cfg.MinioEndpoint, cfg.MinioUseSSL)

	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if endpoint != "" {
			return aws.Endpoint{
				URL:               endpoint,
				HostnameImmutable: true,
				Source:            aws.EndpointSourceCustom,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithEndpointResolverWithOptions(customResolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.MinioRootUser,
			cfg.MinioRootPassword,
			"",
		)),
		awsconfig.WithRegion(cfg.S3Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return NewS3StorageWithClient(client, cfg, log), nil
}

func NewS3StorageWithClient(client API, cfg *config.Config, log *zap.Logger) *PhotoS3Storage {
	return &PhotoS3Storage{client: client, cfg: cfg, log: log}
}

func (p *PhotoS3Storage) Init(ctx context.Context) error {
	bucket := p.cfg.BucketName
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		p.log.Info("bucket already exists", zap.String("bucket", bucket))
		return nil
	}
	if classify(err) != domain.ErrBlobNotFound {
		return p.wrap(bucket, err)
	}

	p.log.Info("creating bucket", zap.String("bucket", bucket))
	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 не принимает LocationConstraint
	if p.cfg.S3Region != "" && p.cfg.S3Region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(p.cfg.S3Region),
		}
	}
	if _, err := p.client.CreateBucket(ctx, in); err != nil {
		return p.wrap(bucket, err)
	}
	return nil
}

func (p *PhotoS3Storage) PutObject(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.cfg.BucketName),
		Key:           aws.String(objectKey),
		Body:          r,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		p.log.Error("failed to upload object", zap.String("key", objectKey), zap.Error(err))
		return "", p.wrap(objectKey, err)
	}

	p.log.Info("object uploaded", zap.String("key", objectKey), zap.Int64("size", size))
	return p.ObjectURL(objectKey), nil
}

func (p *PhotoS3Storage) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	output, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.BucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, p.wrap(objectKey, err)
	}
	return output.Body, nil
}

func (p *PhotoS3Storage) RemoveObject(ctx context.Context, objectKey string) error {
	if objectKey == "" {
		return p.wrap(objectKey, errors.New("object key cannot be empty"))
	}
	// DeleteObject succeeds for missing keys
	if _, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.cfg.BucketName),
		Key:    aws.String(objectKey),
	}); err != nil {
		return p.wrap(objectKey, err)
	}

	if _, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.BucketName),
		Key:    aws.String(objectKey),
	}); err != nil {
		return p.wrap(objectKey, err)
	}

	p.log.Info("object removed", zap.String("key", objectKey))
	return nil
}

func (p *PhotoS3Storage) ObjectURL(objectKey string) string {
	return p.cfg.S3PublicURL + "/" + p.cfg.BucketName + "/" + url.PathEscape(objectKey)
}

func (p *PhotoS3Storage) wrap(key string, err error) error {
	return &domain.BlobError{Key: key, Kind: classify(err), Err: err}
}

func classify(err error) error {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &noBucket) || errors.As(err, &notFound) {
		return domain.ErrBlobNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return domain.ErrBlobNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return domain.ErrBlobAuth
		}
	}
	return domain.ErrBlobTransient
}

func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if strings.HasPrefix(endpoint, ":") {
		endpoint = "localhost" + endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
