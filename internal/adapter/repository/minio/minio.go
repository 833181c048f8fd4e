package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/dontpanicw/PhotoGallery/config"
	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"github.com/dontpanicw/PhotoGallery/internal/port"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

var _ port.ObjectStorage = (*PhotoMinioStorage)(nil)

type PhotoMinioStorage struct {
	mc     *minio.Client // Клиент Minio
	config *config.Config
	log    *zap.Logger
	// startup limits how long Init waits for the server to come up
	startup func() backoff.BackOff
}

// NewMinioClient создает новый экземпляр Minio Client
func NewMinioClient(cfg *config.Config, log *zap.Logger) (*PhotoMinioStorage, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioRootUser, cfg.MinioRootPassword, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &PhotoMinioStorage{
		mc:     client,
		config: cfg,
		log:    log,
		startup: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}, nil
}

// Init ждёт готовности MinIO и создаёт бакет, если его ещё нет.
func (p *PhotoMinioStorage) Init(ctx context.Context) error {
	bucket := p.config.BucketName

	ensure := func() error {
		exists, err := p.mc.BucketExists(ctx, bucket)
		if err != nil {
			if classify(err) == domain.ErrBlobAuth {
				return backoff.Permanent(err)
			}
			p.log.Warn("minio is not ready yet", zap.Error(err))
			return err
		}
		if exists {
			p.log.Info("bucket already exists", zap.String("bucket", bucket))
			return nil
		}
		if err := p.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: p.config.S3Region}); err != nil {
			return err
		}
		p.log.Info("bucket created", zap.String("bucket", bucket))
		return nil
	}

	if err := backoff.Retry(ensure, backoff.WithContext(p.startup(), ctx)); err != nil {
		return p.wrap(bucket, fmt.Errorf("failed to initialize bucket: %w", err))
	}
	return nil
}

func (p *PhotoMinioStorage) PutObject(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) (string, error) {
	opts := minio.PutObjectOptions{
		ContentType: contentType,
	}

	info, err := p.mc.PutObject(ctx, p.config.BucketName, objectKey, r, size, opts)
	if err != nil {
		return "", p.wrap(objectKey, err)
	}

	p.log.Info("object uploaded", zap.String("key", objectKey), zap.Int64("size", info.Size))
	return p.ObjectURL(objectKey), nil
}

func (p *PhotoMinioStorage) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	object, err := p.mc.GetObject(ctx, p.config.BucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, p.wrap(objectKey, err)
	}
	// GetObject ленивый: ошибки вроде NoSuchKey приходят только при первом обращении
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, p.wrap(objectKey, err)
	}
	return object, nil
}

func (p *PhotoMinioStorage) RemoveObject(ctx context.Context, objectKey string) error {
	if objectKey == "" {
		return p.wrap(objectKey, errors.New("object key cannot be empty"))
	}

	// RemoveObject в MinIO не сообщает об отсутствии ключа, поэтому проверяем явно
	if _, err := p.mc.StatObject(ctx, p.config.BucketName, objectKey, minio.StatObjectOptions{}); err != nil {
		return p.wrap(objectKey, err)
	}

	if err := p.mc.RemoveObject(ctx, p.config.BucketName, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return p.wrap(objectKey, err)
	}

	p.log.Info("object removed", zap.String("key", objectKey))
	return nil
}

// ObjectURL экранирует ключ, чтобы '#', '?' и пробелы не ломали ссылку
func (p *PhotoMinioStorage) ObjectURL(objectKey string) string {
	return p.config.S3PublicURL + "/" + p.config.BucketName + "/" + url.PathEscape(objectKey)
}

func (p *PhotoMinioStorage) wrap(key string, err error) error {
	return &domain.BlobError{Key: key, Kind: classify(err), Err: err}
}

func classify(err error) error {
	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		switch minioErr.Code {
		case "NoSuchKey", "NoSuchBucket":
			return domain.ErrBlobNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return domain.ErrBlobAuth
		}
	}
	return domain.ErrBlobTransient
}
