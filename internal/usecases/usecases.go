package usecases

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"github.com/dontpanicw/PhotoGallery/internal/metrics"
	"github.com/dontpanicw/PhotoGallery/internal/port"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var _ port.PhotoUsecases = (*PhotoUsecases)(nil)

const defaultUploadWorkers = 4

type PhotoUsecases struct {
	repo       port.PhotoRepository
	storage    port.ObjectStorage
	normalizer port.Normalizer
	// producer is nil when repairs run inline
	producer port.Producer
	log      *zap.Logger
	observer metrics.Observer
	workers  int
	keys     *keyLocks
}

type Option func(*PhotoUsecases)

func WithObserver(observer metrics.Observer) Option {
	return func(u *PhotoUsecases) {
		if observer != nil {
			u.observer = observer
		}
	}
}

// WithUploadWorkers limits how many files of one batch are processed at once.
func WithUploadWorkers(n int) Option {
	return func(u *PhotoUsecases) {
		if n > 0 {
			u.workers = n
		}
	}
}

func NewPhotoUsecases(repo port.PhotoRepository, storage port.ObjectStorage, normalizer port.Normalizer,
	producer port.Producer, log *zap.Logger, opts ...Option) *PhotoUsecases {
	u := &PhotoUsecases{
		repo:       repo,
		storage:    storage,
		normalizer: normalizer,
		producer:   producer,
		log:        log,
		observer:   metrics.Nop{},
		workers:    defaultUploadWorkers,
		keys:       newKeyLocks(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UploadPhoto normalizes one file, stores the blob and then records the row.
// Nothing is written when normalization fails, and no row is written when the
// blob write fails.
func (u *PhotoUsecases) UploadPhoto(ctx context.Context, file domain.UploadFile) (*domain.Photo, error) {
	start := time.Now()
	photo, size, err := u.upload(ctx, file)
	u.observer.RecordUpload(time.Since(start), size, err)
	return photo, err
}

func (u *PhotoUsecases) upload(ctx context.Context, file domain.UploadFile) (*domain.Photo, uint64, error) {
	if err := validateUpload(file); err != nil {
		return nil, 0, &domain.UploadError{Filename: file.Filename, Stage: domain.StageNormalize, Err: err}
	}

	normalized, err := u.normalizer.Normalize(file.Data, file.Filename)
	if err != nil {
		u.log.Warn("failed to normalize photo", zap.String("filename", file.Filename), zap.Error(err))
		return nil, 0, &domain.UploadError{Filename: file.Filename, Stage: domain.StageNormalize, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, 0, &domain.UploadError{Filename: file.Filename, Stage: domain.StageStore, Err: err}
	}
	// после начала записи блоба отмена запроса уже не прерывает загрузку
	ctx = context.WithoutCancel(ctx)

	// блоб и строка одного ключа пишутся вместе
	unlock := u.keys.lock(normalized.Key)
	defer unlock()

	size := uint64(len(normalized.Data))
	url, err := u.storage.PutObject(ctx, normalized.Key, bytes.NewReader(normalized.Data), int64(size), domain.CanonicalContentType)
	if err != nil {
		u.log.Error("failed to store photo", zap.String("key", normalized.Key), zap.Error(err))
		return nil, 0, &domain.UploadError{Filename: file.Filename, Stage: domain.StageStore, Err: err}
	}

	photo, err := u.repo.CreatePhoto(ctx, domain.Photo{
		IsHorizontal: normalized.IsHorizontal,
		PhotoURL:     url,
		Name:         normalized.Key,
	})
	if err != nil {
		u.observer.RecordOrphanBlob()
		u.log.Error("orphan blob: photo row was not created",
			zap.String("key", normalized.Key),
			zap.String("url", url),
			zap.Error(err))
		return nil, 0, &domain.UploadError{Filename: file.Filename, Stage: domain.StageRecord, Err: err}
	}

	u.log.Info("photo uploaded",
		zap.Int64("id", photo.Id),
		zap.String("name", photo.Name),
		zap.Bool("is_horizontal", photo.IsHorizontal))
	return photo, size, nil
}

// UploadPhotos processes every file independently. The result slice has one
// entry per input file, in input order.
func (u *PhotoUsecases) UploadPhotos(ctx context.Context, files []domain.UploadFile) []domain.UploadResult {
	results := make([]domain.UploadResult, len(files))

	var g errgroup.Group
	g.SetLimit(u.workers)
	for i, file := range files {
		g.Go(func() error {
			results[i].Filename = file.Filename
			photo, err := u.UploadPhoto(ctx, file)
			if err != nil {
				results[i].Error = publicMessage(err)
				return nil
			}
			results[i].Photo = photo
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (u *PhotoUsecases) ListPhotos(ctx context.Context) ([]domain.Photo, error) {
	photos, err := u.repo.ListPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, nil
}

// DeletePhoto removes the blob first and then the row. A blob that cannot be
// removed is logged and left behind; the row is still deleted.
func (u *PhotoUsecases) DeletePhoto(ctx context.Context, id int64) error {
	start := time.Now()
	err := u.deletePhoto(ctx, id)
	u.observer.RecordDelete(time.Since(start), err)
	return err
}

func (u *PhotoUsecases) deletePhoto(ctx context.Context, id int64) error {
	photo, err := u.repo.GetPhotoByID(ctx, id)
	if err != nil {
		return err
	}

	unlock := u.keys.lock(photo.Name)
	defer unlock()

	err = u.storage.RemoveObject(ctx, photo.Name)
	switch {
	case errors.Is(err, domain.ErrBlobNotFound):
		u.log.Info("blob already absent", zap.Int64("id", id), zap.String("key", photo.Name))
	case err != nil:
		u.log.Warn("failed to remove blob, leaving it orphaned",
			zap.Int64("id", id),
			zap.String("key", photo.Name),
			zap.Error(err))
	}

	if err := u.repo.DeletePhotoByID(ctx, id); err != nil {
		return err
	}

	u.log.Info("photo deleted", zap.Int64("id", id), zap.String("name", photo.Name))
	return nil
}

// RepairOrientation re-runs orientation resolution on a stored photo. The blob
// is rewritten under the same key when it still needs rotating, and the row is
// updated when its flag no longer matches.
func (u *PhotoUsecases) RepairOrientation(ctx context.Context, id int64) (*domain.RepairResult, error) {
	start := time.Now()
	result, err := u.repair(ctx, id)
	u.observer.RecordRepair(time.Since(start), err)
	return result, err
}

func (u *PhotoUsecases) repair(ctx context.Context, id int64) (*domain.RepairResult, error) {
	photo, err := u.repo.GetPhotoByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := u.keys.lock(photo.Name)
	defer unlock()

	data, err := u.readBlob(ctx, photo.Name)
	if err != nil {
		return nil, err
	}

	normalized, err := u.normalizer.Renormalize(data, photo.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to renormalize photo %d: %w", id, err)
	}

	if normalized.Rewritten {
		if _, err := u.storage.PutObject(ctx, photo.Name, bytes.NewReader(normalized.Data),
			int64(len(normalized.Data)), domain.CanonicalContentType); err != nil {
			return nil, fmt.Errorf("failed to rewrite photo %d: %w", id, err)
		}
	}

	result := &domain.RepairResult{
		PhotoID:      id,
		Rewritten:    normalized.Rewritten,
		Flipped:      normalized.IsHorizontal != photo.IsHorizontal,
		IsHorizontal: normalized.IsHorizontal,
	}
	if result.Rewritten || result.Flipped {
		if err := u.repo.UpdateOrientation(ctx, id, normalized.IsHorizontal); err != nil {
			return nil, fmt.Errorf("failed to update orientation of photo %d: %w", id, err)
		}
	}

	u.log.Info("orientation repaired",
		zap.Int64("id", id),
		zap.Bool("rewritten", result.Rewritten),
		zap.Bool("flipped", result.Flipped))
	return result, nil
}

func (u *PhotoUsecases) readBlob(ctx context.Context, key string) ([]byte, error) {
	rc, err := u.storage.GetObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get blob %s: %w", key, err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			u.log.Warn("failed to close blob reader", zap.String("key", key), zap.Error(err))
		}
	}()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// ScheduleOrientationRepair queues one repair task per photo, or runs the
// repairs in place when no broker is configured. A failure for one photo is
// reported in the result and does not stop the pass.
func (u *PhotoUsecases) ScheduleOrientationRepair(ctx context.Context) (*domain.RepairReport, error) {
	photos, err := u.repo.ListPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}

	report := &domain.RepairReport{}
	if u.producer != nil {
		for _, photo := range photos {
			if err := u.producer.SendRepairTask(ctx, photo.Id); err != nil {
				u.log.Error("failed to queue repair task", zap.Int64("id", photo.Id), zap.Error(err))
				report.Results = append(report.Results, domain.RepairResult{PhotoID: photo.Id, Error: "failed to queue repair"})
				continue
			}
			report.Queued++
		}
		u.log.Info("repair tasks queued", zap.Int("queued", report.Queued), zap.Int("total", len(photos)))
		return report, nil
	}

	report.Results = make([]domain.RepairResult, len(photos))
	var g errgroup.Group
	g.SetLimit(u.workers)
	for i, photo := range photos {
		g.Go(func() error {
			result, err := u.RepairOrientation(ctx, photo.Id)
			if err != nil {
				u.log.Error("failed to repair photo", zap.Int64("id", photo.Id), zap.Error(err))
				report.Results[i] = domain.RepairResult{PhotoID: photo.Id, Error: publicMessage(err)}
				return nil
			}
			report.Results[i] = *result
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

func validateUpload(file domain.UploadFile) error {
	if file.Filename == "" {
		return errors.New("filename is required")
	}
	if len(file.Data) == 0 {
		return errors.New("file is empty")
	}
	return nil
}

func publicMessage(err error) string {
	var uploadErr *domain.UploadError
	switch {
	case errors.As(err, &uploadErr):
		return uploadErr.PublicMessage()
	case errors.Is(err, domain.ErrPhotoNotFound):
		return domain.ErrPhotoNotFound.Error()
	default:
		return "internal server error"
	}
}
