// Package sqlite stores photo rows in a local SQLite file for single-node setups.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"github.com/dontpanicw/PhotoGallery/internal/port"
	"github.com/dontpanicw/PhotoGallery/pkg/migrations"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

var _ port.PhotoRepository = (*PhotoRepository)(nil)

type PhotoRepository struct {
	db *sql.DB
}

// Open opens the database file and applies migrations.
func Open(path string) (*PhotoRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := (&url.URL{Scheme: "file", Path: path}).String()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrations.Migrate(db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PhotoRepository{db: db}, nil
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	return nil
}

func (r *PhotoRepository) Master() *sql.DB {
	return r.db
}

func (r *PhotoRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PhotoRepository) CreatePhoto(ctx context.Context, photo domain.Photo) (*domain.Photo, error) {
	query := `
INSERT INTO photos (is_horizontal, photo_url, name) VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
  is_horizontal = excluded.is_horizontal,
  photo_url = excluded.photo_url
RETURNING id`

	if err := r.db.QueryRowContext(ctx, query, photo.IsHorizontal, photo.PhotoURL, photo.Name).Scan(&photo.Id); err != nil {
		return nil, fmt.Errorf("failed to save photo %s: %w", photo.Name, err)
	}
	return &photo, nil
}

func (r *PhotoRepository) ListPhotos(ctx context.Context) ([]domain.Photo, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, is_horizontal, photo_url, name FROM photos ORDER BY id")
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
	return photos, rows.Err()
}

func (r *PhotoRepository) GetPhotoByID(ctx context.Context, id int64) (*domain.Photo, error) {
	var photo domain.Photo
	err := r.db.QueryRowContext(ctx,
		"SELECT id, is_horizontal, photo_url, name FROM photos WHERE id = ?", id,
	).Scan(&photo.Id, &photo.IsHorizontal, &photo.PhotoURL, &photo.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("photo with id %d: %w", id, domain.ErrPhotoNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo by id %d: %w", id, err)
	}
	return &photo, nil
}

func (r *PhotoRepository) DeletePhotoByID(ctx context.Context, id int64) error {
	return r.execOne(ctx, "DELETE FROM photos WHERE id = ?", id)
}

func (r *PhotoRepository) UpdateOrientation(ctx context.Context, id int64, isHorizontal bool) error {
	return r.execOne(ctx, "UPDATE photos SET is_horizontal = ? WHERE id = ?", isHorizontal, id)
}

// execOne runs a statement keyed by the last argument (the photo id) and
// maps "no rows" to ErrPhotoNotFound.
func (r *PhotoRepository) execOne(ctx context.Context, query string, args ...any) error {
	id := args[len(args)-1]
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to write photo %v: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for photo %v: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id=%v", domain.ErrPhotoNotFound, id)
	}
	return nil
}
