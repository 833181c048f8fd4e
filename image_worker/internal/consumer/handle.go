package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dontpanicw/PhotoGallery/image_worker/internal/port"
	"github.com/dontpanicw/PhotoGallery/internal/adapter/broker"
	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"go.uber.org/zap"
)

const workerCount = 5

// errPermanent marks a message that will never succeed and must not be
// redelivered: a malformed body or a photo that was deleted meanwhile.
var errPermanent = errors.New("permanent failure")

func handle(ctx context.Context, repairer port.Repairer, log *zap.Logger, body []byte) error {
	task, err := broker.DecodeTask(body)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}

	result, err := repairer.RepairOrientation(ctx, task.PhotoID)
	if errors.Is(err, domain.ErrPhotoNotFound) {
		return fmt.Errorf("%w: photo %d: %v", errPermanent, task.PhotoID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to repair photo %d: %w", task.PhotoID, err)
	}

	log.Info("repair task processed",
		zap.Int64("photo_id", task.PhotoID),
		zap.Bool("rewritten", result.Rewritten),
		zap.Bool("flipped", result.Flipped))
	return nil
}
