package port

import (
	"context"

	"github.com/dontpanicw/PhotoGallery/internal/domain"
)

type PhotoUsecases interface {
	UploadPhoto(ctx context.Context, file domain.UploadFile) (*domain.Photo, error)
	UploadPhotos(ctx context.Context, files []domain.UploadFile) []domain.UploadResult
	ListPhotos(ctx context.Context) ([]domain.Photo, error)
	DeletePhoto(ctx context.Context, id int64) error
	RepairOrientation(ctx context.Context, id int64) (*domain.RepairResult, error)
	ScheduleOrientationRepair(ctx context.Context) (*domain.RepairReport, error)
}

type Authenticator interface {
	// Authenticate returns domain.ErrUnauthorized when the pair does not match.
	Authenticate(user, password string) error
}
