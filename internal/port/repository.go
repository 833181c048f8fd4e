package port

import (
	"context"
	"io"

	"github.com/dontpanicw/PhotoGallery/internal/domain"
)

type PhotoRepository interface {
	// CreatePhoto inserts the row, or updates the row that already has the same name.
	CreatePhoto(ctx context.Context, photo domain.Photo) (*domain.Photo, error)
	ListPhotos(ctx context.Context) ([]domain.Photo, error)
	GetPhotoByID(ctx context.Context, id int64) (*domain.Photo, error)
	DeletePhotoByID(ctx context.Context, id int64) error
	UpdateOrientation(ctx context.Context, id int64, isHorizontal bool) error
}

// ObjectStorage is an S3-compatible bucket. Errors are *domain.BlobError.
type ObjectStorage interface {
	Init(ctx context.Context) error
	// PutObject returns the public URL of the stored object.
	PutObject(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) (string, error)
	GetObject(ctx context.Context, objectKey string) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, objectKey string) error
	ObjectURL(objectKey string) string
}
