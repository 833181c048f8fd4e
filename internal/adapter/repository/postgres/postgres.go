package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dontpanicw/PhotoGallery/config"
	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"github.com/dontpanicw/PhotoGallery/internal/port"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"

	_ "github.com/lib/pq"
)

var _ port.PhotoRepository = (*PhotoRepository)(nil)

type PhotoRepository struct {
	PostgresDB *dbpg.DB
}

func NewPhotoRepository(cfg *config.Config) (*PhotoRepository, error) {
	opts := &dbpg.Options{MaxOpenConns: 10, MaxIdleConns: 5}
	db, err := dbpg.New(cfg.MasterDSN, cfg.SlaveDSNs, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	return &PhotoRepository{
		PostgresDB: db,
	}, nil
}

// Master exposes the primary connection for migrations and health checks.
func (p *PhotoRepository) Master() *sql.DB {
	return p.PostgresDB.Master
}

func (p *PhotoRepository) CreatePhoto(ctx context.Context, photo domain.Photo) (*domain.Photo, error) {
	query := `
        INSERT INTO photos (is_horizontal, photo_url, name)
        VALUES ($1, $2, $3)
        ON CONFLICT (name) DO UPDATE SET
            is_horizontal = EXCLUDED.is_horizontal,
            photo_url = EXCLUDED.photo_url
        RETURNING id
    `

	// запись сразу после загрузки блоба, читаем id с мастера
	err := p.PostgresDB.Master.QueryRowContext(ctx, query,
		photo.IsHorizontal,
		photo.PhotoURL,
		photo.Name,
	).Scan(&photo.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to save photo %s: %w", photo.Name, err)
	}

	return &photo, nil
}

func (p *PhotoRepository) ListPhotos(ctx context.Context) ([]domain.Photo, error) {
	query := `SELECT id, is_horizontal, photo_url, name FROM photos ORDER BY id`

	rows, err := p.PostgresDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()

	photos := make([]domain.Photo, 0)
	for rows.Next() {
		var photo domain.Photo
		if err := rows.Scan(&photo.Id, &photo.IsHorizontal, &photo.PhotoURL, &photo.Name); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, nil
}

func (p *PhotoRepository) GetPhotoByID(ctx context.Context, id int64) (*domain.Photo, error) {
	query := `
        SELECT id, is_horizontal, photo_url, name
        FROM photos
        WHERE id = $1
    `

	var photo domain.Photo
	err := p.PostgresDB.Master.QueryRowContext(ctx, query, id).Scan(
		&photo.Id,
		&photo.IsHorizontal,
		&photo.PhotoURL,
		&photo.Name,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("photo with id %d: %w", id, domain.ErrPhotoNotFound)
		}
		return nil, fmt.Errorf("failed to get photo by id %d: %w", id, err)
	}

	return &photo, nil
}

func (p *PhotoRepository) DeletePhotoByID(ctx context.Context, id int64) error {
	query := `DELETE FROM photos WHERE id = $1`

	result, err := p.PostgresDB.Master.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete photo %d: %w", id, err)
	}

	// Проверяем, была ли удалена запись
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for photo %d: %w", id, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: id=%d", domain.ErrPhotoNotFound, id)
	}

	return nil
}

// UpdateOrientation is only used by the repair pass and is safe to repeat,
// so it goes through the retrying executor.
func (p *PhotoRepository) UpdateOrientation(ctx context.Context, id int64, isHorizontal bool) error {
	query := `UPDATE photos SET is_horizontal = $1 WHERE id = $2`

	result, err := p.PostgresDB.ExecWithRetry(ctx, createRetryStrategy(), query, isHorizontal, id)
	if err != nil {
		return fmt.Errorf("failed to update photo %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for photo %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: id=%d", domain.ErrPhotoNotFound, id)
	}
	return nil
}

func (p *PhotoRepository) Close() error {
	var errs []error
	if p.PostgresDB.Master != nil {
		errs = append(errs, p.PostgresDB.Master.Close())
	}
	for _, slave := range p.PostgresDB.Slaves {
		errs = append(errs, slave.Close())
	}
	return errors.Join(errs...)
}

func createRetryStrategy() retry.Strategy {
	return retry.Strategy{
		Attempts: 3,
		Delay:    5 * time.Second,
		Backoff:  2}
}
