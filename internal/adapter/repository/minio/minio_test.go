package minio

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/dontpanicw/PhotoGallery/config"
	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey"}, domain.ErrBlobNotFound},
		{"no such bucket", minio.ErrorResponse{Code: "NoSuchBucket"}, domain.ErrBlobNotFound},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied"}, domain.ErrBlobAuth},
		{"bad key id", minio.ErrorResponse{Code: "InvalidAccessKeyId"}, domain.ErrBlobAuth},
		{"bad signature", fmt.Errorf("put: %w", minio.ErrorResponse{Code: "SignatureDoesNotMatch"}), domain.ErrBlobAuth},
		{"server error", minio.ErrorResponse{Code: "InternalError"}, domain.ErrBlobTransient},
		{"network", errors.New("connection refused"), domain.ErrBlobTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestObjectURL(t *testing.T) {
	cfg := &config.Config{
		MinioEndpoint: "minio:9000",
		BucketName:    "photos",
		S3PublicURL:   "https://cdn.example.com",
	}
	storage, err := NewMinioClient(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	tests := []struct {
		key      string
		expected string
	}{
		{"a.webp", "https://cdn.example.com/photos/a.webp"},
		{"my photo.webp", "https://cdn.example.com/photos/my%20photo.webp"},
		{"a#1.webp", "https://cdn.example.com/photos/a%231.webp"},
		{"what?.webp", "https://cdn.example.com/photos/what%3F.webp"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := storage.ObjectURL(tt.key); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestRemoveObject_EmptyKey(t *testing.T) {
	storage, err := NewMinioClient(&config.Config{MinioEndpoint: "minio:9000"}, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	err = storage.RemoveObject(context.Background(), "")
	var blobErr *domain.BlobError
	if !errors.As(err, &blobErr) {
		t.Fatalf("Expected BlobError, got %v", err)
	}
}

func TestInit_GivesUpWhenUnreachable(t *testing.T) {
	storage, err := NewMinioClient(&config.Config{MinioEndpoint: "127.0.0.1:1", BucketName: "photos"}, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	storage.startup = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err = storage.Init(ctx)
	if !errors.Is(err, domain.ErrBlobTransient) {
		t.Fatalf("Expected ErrBlobTransient, got %v", err)
	}
}
