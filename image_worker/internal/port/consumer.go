package port

import (
	"context"

	"github.com/dontpanicw/PhotoGallery/internal/domain"
)

type Consumer interface {
	// Start blocks until ctx is cancelled.
	Start(ctx context.Context) error
	Close() error
}

// Repairer is the part of the photo usecases the worker needs.
type Repairer interface {
	RepairOrientation(ctx context.Context, id int64) (*domain.RepairResult, error)
}
