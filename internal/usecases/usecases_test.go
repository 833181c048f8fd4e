package usecases

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"go.uber.org/zap"
)

// Mock implementations
type mockPhotoRepository struct {
	createPhotoFunc       func(ctx context.Context, photo domain.Photo) (*domain.Photo, error)
	listPhotosFunc        func(ctx context.Context) ([]domain.Photo, error)
	getPhotoByIDFunc      func(ctx context.Context, id int64) (*domain.Photo, error)
	deletePhotoByIDFunc   func(ctx context.Context, id int64) error
	updateOrientationFunc func(ctx context.Context, id int64, isHorizontal bool) error
}

func (m *mockPhotoRepository) CreatePhoto(ctx context.Context, photo domain.Photo) (*domain.Photo, error) {
	if m.createPhotoFunc != nil {
		return m.createPhotoFunc(ctx, photo)
	}
	photo.Id = 1
	return &photo, nil
}

func (m *mockPhotoRepository) ListPhotos(ctx context.Context) ([]domain.Photo, error) {
	if m.listPhotosFunc != nil {
		return m.listPhotosFunc(ctx)
	}
	return []domain.Photo{}, nil
}

func (m *mockPhotoRepository) GetPhotoByID(ctx context.Context, id int64) (*domain.Photo, error) {
	if m.getPhotoByIDFunc != nil {
		return m.getPhotoByIDFunc(ctx, id)
	}
	return &domain.Photo{Id: id, Name: "a.webp", PhotoURL: "http://s3/photos/a.webp"}, nil
}

func (m *mockPhotoRepository) DeletePhotoByID(ctx context.Context, id int64) error {
	if m.deletePhotoByIDFunc != nil {
		return m.deletePhotoByIDFunc(ctx, id)
	}
	return nil
}

func (m *mockPhotoRepository) UpdateOrientation(ctx context.Context, id int64, isHorizontal bool) error {
	if m.updateOrientationFunc != nil {
		return m.updateOrientationFunc(ctx, id, isHorizontal)
	}
	return nil
}

type mockObjectStorage struct {
	putObjectFunc    func(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	getObjectFunc    func(ctx context.Context, key string) (io.ReadCloser, error)
	removeObjectFunc func(ctx context.Context, key string) error
}

func (m *mockObjectStorage) Init(ctx context.Context) error {
	return nil
}

func (m *mockObjectStorage) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, key, r, size, contentType)
	}
	return m.ObjectURL(key), nil
}

func (m *mockObjectStorage) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.getObjectFunc != nil {
		return m.getObjectFunc(ctx, key)
	}
	return io.NopCloser(strings.NewReader("stored")), nil
}

func (m *mockObjectStorage) RemoveObject(ctx context.Context, key string) error {
	if m.removeObjectFunc != nil {
		return m.removeObjectFunc(ctx, key)
	}
	return nil
}

func (m *mockObjectStorage) ObjectURL(key string) string {
	return "http://s3/photos/" + key
}

type mockNormalizer struct {
	normalizeFunc   func(data []byte, filename string) (*domain.NormalizedImage, error)
	renormalizeFunc func(data []byte, key string) (*domain.NormalizedImage, error)
}

func (m *mockNormalizer) Normalize(data []byte, filename string) (*domain.NormalizedImage, error) {
	if m.normalizeFunc != nil {
		return m.normalizeFunc(data, filename)
	}
	key := strings.TrimSuffix(filename, ".jpg") + ".webp"
	return &domain.NormalizedImage{Data: []byte("webp"), Key: key, IsHorizontal: true, Rewritten: true}, nil
}

func (m *mockNormalizer) Renormalize(data []byte, key string) (*domain.NormalizedImage, error) {
	if m.renormalizeFunc != nil {
		return m.renormalizeFunc(data, key)
	}
	return &domain.NormalizedImage{Data: data, Key: key}, nil
}

type mockProducer struct {
	mu   sync.Mutex
	sent []int64
	err  error
}

func (m *mockProducer) SendRepairTask(ctx context.Context, photoID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, photoID)
	return nil
}

func (m *mockProducer) Close() error { return nil }

type countingObserver struct {
	mu      sync.Mutex
	uploads int
	orphans int
	deletes int
	repairs int
}

func (c *countingObserver) RecordUpload(time.Duration, uint64, error) {
	c.mu.Lock()
	c.uploads++
	c.mu.Unlock()
}

func (c *countingObserver) RecordDelete(time.Duration, error) { c.deletes++ }

func (c *countingObserver) RecordRepair(time.Duration, error) {
	c.mu.Lock()
	c.repairs++
	c.mu.Unlock()
}

func (c *countingObserver) RecordOrphanBlob() { c.orphans++ }

func newTestUsecases(repo *mockPhotoRepository, storage *mockObjectStorage, norm *mockNormalizer, opts ...Option) *PhotoUsecases {
	return NewPhotoUsecases(repo, storage, norm, nil, zap.NewNop(), opts...)
}

func TestUploadPhoto_Success(t *testing.T) {
	var calls []string
	repo := &mockPhotoRepository{
		createPhotoFunc: func(ctx context.Context, photo domain.Photo) (*domain.Photo, error) {
			calls = append(calls, "record")
			photo.Id = 5
			return &photo, nil
		},
	}
	storage := &mockObjectStorage{
		putObjectFunc: func(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
			calls = append(calls, "store")
			if contentType != domain.CanonicalContentType {
				t.Errorf("Expected content type %s, got %s", domain.CanonicalContentType, contentType)
			}
			body, _ := io.ReadAll(r)
			if int64(len(body)) != size {
				t.Errorf("Expected %d bytes, got %d", size, len(body))
			}
			return "http://s3/photos/" + key, nil
		},
	}

	usecase := newTestUsecases(repo, storage, &mockNormalizer{})

	photo, err := usecase.UploadPhoto(context.Background(), domain.UploadFile{Filename: "a.jpg", Data: []byte("jpeg")})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if photo.Id != 5 || photo.Name != "a.webp" || !photo.IsHorizontal {
		t.Errorf("Unexpected photo %+v", photo)
	}
	if photo.PhotoURL != "http://s3/photos/a.webp" {
		t.Errorf("Expected URL from blob store, got %s", photo.PhotoURL)
	}
	if len(calls) != 2 || calls[0] != "store" || calls[1] != "record" {
		t.Errorf("Expected store then record, got %v", calls)
	}
}

func TestUploadPhoto_ValidationError(t *testing.T) {
	usecase := newTestUsecases(&mockPhotoRepository{}, &mockObjectStorage{}, &mockNormalizer{})

	for _, file := range []domain.UploadFile{{Filename: "", Data: []byte("x")}, {Filename: "a.jpg"}} {
		_, err := usecase.UploadPhoto(context.Background(), file)

		var uploadErr *domain.UploadError
		if !errors.As(err, &uploadErr) || uploadErr.Stage != domain.StageNormalize {
			t.Fatalf("Expected normalize stage error, got %v", err)
		}
	}
}

func TestUploadPhoto_NormalizeError_NoWrites(t *testing.T) {
	repo := &mockPhotoRepository{
		createPhotoFunc: func(ctx context.Context, photo domain.Photo) (*domain.Photo, error) {
			t.Fatal("Expected no record write")
			return nil, nil
		},
	}
	storage := &mockObjectStorage{
		putObjectFunc: func(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
			t.Fatal("Expected no blob write")
			return "", nil
		},
	}
	norm := &mockNormalizer{
		normalizeFunc: func(data []byte, filename string) (*domain.NormalizedImage, error) {
			return nil, domain.NewNormalizationError(filename, domain.ErrDecode, errors.New("bad header"))
		},
	}

	usecase := newTestUsecases(repo, storage, norm)

	_, err := usecase.UploadPhoto(context.Background(), domain.UploadFile{Filename: "bad.jpg", Data: []byte("x")})

	var uploadErr *domain.UploadError
	if !errors.As(err, &uploadErr) || uploadErr.Stage != domain.StageNormalize {
		t.Fatalf("Expected normalize stage error, got %v", err)
	}
	if !errors.Is(err, domain.ErrDecode) {
		t.Errorf("Expected ErrDecode cause, got %v", err)
	}
}

func TestUploadPhoto_StoreError_NoRecord(t *testing.T) {
	repo := &mockPhotoRepository{
		createPhotoFunc: func(ctx context.Context, photo domain.Photo) (*domain.Photo, error) {
			t.Fatal("Expected no record write")
			return nil, nil
		},
	}
	storage := &mockObjectStorage{
		putObjectFunc: func(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
			return "", &domain.BlobError{Key: key, Kind: domain.ErrBlobAuth, Err: errors.New("AccessDenied")}
		},
	}

	usecase := newTestUsecases(repo, storage, &mockNormalizer{})

	_, err := usecase.UploadPhoto(context.Background(), domain.UploadFile{Filename: "a.jpg", Data: []byte("x")})

	var uploadErr *domain.UploadError
	if !errors.As(err, &uploadErr) || uploadErr.Stage != domain.StageStore {
		t.Fatalf("Expected store stage error, got %v", err)
	}
	if !errors.Is(err, domain.ErrBlobAuth) {
		t.Errorf("Expected ErrBlobAuth cause, got %v", err)
	}
}

func TestUploadPhoto_RecordError_CountsOrphan(t *testing.T) {
	removed := false
	repo := &mockPhotoRepository{
		createPhotoFunc: func(ctx context.Context, photo domain.Photo) (*domain.Photo, error) {
			return nil, errors.New("db error")
		},
	}
	storage := &mockObjectStorage{
		removeObjectFunc: func(ctx context.Context, key string) error {
			removed = true
			return nil
		},
	}
	observer := &countingObserver{}

	usecase := newTestUsecases(repo, storage, &mockNormalizer{}, WithObserver(observer))

	_, err := usecase.UploadPhoto(context.Background(), domain.UploadFile{Filename: "a.jpg", Data: []byte("x")})

	var uploadErr *domain.UploadError
	if !errors.As(err, &uploadErr) || uploadErr.Stage != domain.StageRecord {
		t.Fatalf("Expected record stage error, got %v", err)
	}
	if removed {
		t.Error("Expected blob to be left in place")
	}
	if observer.orphans != 1 {
		t.Errorf("Expected 1 orphan recorded, got %d", observer.orphans)
	}
	if observer.uploads != 1 {
		t.Errorf("Expected 1 upload recorded, got %d", observer.uploads)
	}
}

func TestUploadPhoto_CanceledBeforeStore(t *testing.T) {
	storage := &mockObjectStorage{
		putObjectFunc: func(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
			t.Fatal("Expected no blob write")
			return "", nil
		},
	}
	usecase := newTestUsecases(&mockPhotoRepository{}, storage, &mockNormalizer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := usecase.UploadPhoto(ctx, domain.UploadFile{Filename: "a.jpg", Data: []byte("x")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestUploadPhoto_StoreIgnoresLaterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	storage := &mockObjectStorage{
		putObjectFunc: func(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
			cancel()
			if ctx.Err() != nil {
				t.Error("Expected blob write context to survive request cancellation")
			}
			return "http://s3/photos/" + key, nil
		},
	}
	repo := &mockPhotoRepository{
		createPhotoFunc: func(ctx context.Context, photo domain.Photo) (*domain.Photo, error) {
			if ctx.Err() != nil {
				t.Error("Expected record write context to survive request cancellation")
			}
			photo.Id = 1
			return &photo, nil
		},
	}
	usecase := newTestUsecases(repo, storage, &mockNormalizer{})

	if _, err := usecase.UploadPhoto(ctx, domain.UploadFile{Filename: "a.jpg", Data: []byte("x")}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestUploadPhotos_IsolatesFailures(t *testing.T) {
	norm := &mockNormalizer{
		normalizeFunc: func(data []byte, filename string) (*domain.NormalizedImage, error) {
			if filename == "broken.jpg" {
				return nil, domain.NewNormalizationError(filename, domain.ErrDecode, nil)
			}
			return &domain.NormalizedImage{Data: data, Key: strings.TrimSuffix(filename, ".jpg") + ".webp"}, nil
		},
	}
	var mu sync.Mutex
	var recorded []string
	repo := &mockPhotoRepository{
		createPhotoFunc: func(ctx context.Context, photo domain.Photo) (*domain.Photo, error) {
			mu.Lock()
			defer mu.Unlock()
			recorded = append(recorded, photo.Name)
			photo.Id = int64(len(recorded))
			return &photo, nil
		},
	}

	usecase := newTestUsecases(repo, &mockObjectStorage{}, norm, WithUploadWorkers(2))

	files := []domain.UploadFile{
		{Filename: "one.jpg", Data: []byte("1")},
		{Filename: "broken.jpg", Data: []byte("2")},
		{Filename: "three.jpg", Data: []byte("3")},
	}
	results := usecase.UploadPhotos(context.Background(), files)

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, file := range files {
		if results[i].Filename != file.Filename {
			t.Errorf("Expected result %d for %s, got %s", i, file.Filename, results[i].Filename)
		}
	}
	if results[0].Photo == nil || results[2].Photo == nil {
		t.Error("Expected valid files to succeed")
	}
	if results[1].Photo != nil || results[1].Error != "failed to process image" {
		t.Errorf("Expected broken file to fail with public message, got %+v", results[1])
	}
	if len(recorded) != 2 {
		t.Errorf("Expected 2 rows, got %v", recorded)
	}
}

// a.jpg и a.png дают один ключ a.webp. Моки выстраивают порядок
// A-put, B-put, B-upsert, A-upsert, если записи одного ключа не сериализованы.
func TestUploadPhotos_SameKeyStaysConsistent(t *testing.T) {
	const wait = 200 * time.Millisecond

	norm := &mockNormalizer{
		normalizeFunc: func(data []byte, filename string) (*domain.NormalizedImage, error) {
			return &domain.NormalizedImage{
				Data:         data,
				Key:          "a.webp",
				IsHorizontal: string(data) == "LANDSCAPE",
			}, nil
		},
	}

	var (
		mu          sync.Mutex
		stored      string
		puts        int
		firstPut    string
		creates     int
		row         *domain.Photo
		secondPut   = make(chan struct{})
		otherCreate = make(chan struct{})
		createDone  sync.Once
	)
	storage := &mockObjectStorage{
		putObjectFunc: func(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
			data, _ := io.ReadAll(r)
			mu.Lock()
			stored = string(data)
			puts++
			n := puts
			if n == 1 {
				firstPut = string(data)
			}
			mu.Unlock()

			if n == 1 {
				select {
				case <-secondPut:
				case <-time.After(wait):
				}
			} else if n == 2 {
				close(secondPut)
			}
			return "http://s3/photos/" + key, nil
		},
	}
	repo := &mockPhotoRepository{
		createPhotoFunc: func(ctx context.Context, photo domain.Photo) (*domain.Photo, error) {
			mu.Lock()
			first := photo.IsHorizontal == (firstPut == "LANDSCAPE") && creates == 0
			mu.Unlock()

			// загрузка, записавшая блоб первой, делает upsert последней
			if first {
				select {
				case <-otherCreate:
				case <-time.After(wait):
				}
			}

			mu.Lock()
			defer mu.Unlock()
			creates++
			photo.Id = 1
			row = &photo
			if !first {
				createDone.Do(func() { close(otherCreate) })
			}
			return &photo, nil
		},
	}

	usecase := newTestUsecases(repo, storage, norm, WithUploadWorkers(2))

	results := usecase.UploadPhotos(context.Background(), []domain.UploadFile{
		{Filename: "a.jpg", Data: []byte("LANDSCAPE")},
		{Filename: "a.png", Data: []byte("PORTRAIT")},
	})

	for _, result := range results {
		if result.Error != "" {
			t.Fatalf("Expected no error for %s, got %s", result.Filename, result.Error)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if row == nil {
		t.Fatal("Expected photo row to be recorded")
	}
	if (stored == "LANDSCAPE") != row.IsHorizontal {
		t.Errorf("Expected row to describe stored blob %q, got is_horizontal=%v", stored, row.IsHorizontal)
	}
}

func TestKeyLocks_ReleasesEntries(t *testing.T) {
	keys := newKeyLocks()

	unlock := keys.lock("a.webp")
	acquired := make(chan struct{})
	go func() {
		keys.lock("a.webp")()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("Expected second lock to wait")
	case <-time.After(50 * time.Millisecond):
	}

	keys.lock("b.webp")()
	unlock()
	<-acquired

	keys.mu.Lock()
	defer keys.mu.Unlock()
	if len(keys.locks) != 0 {
		t.Errorf("Expected no entries left, got %d", len(keys.locks))
	}
}

func TestListPhotos(t *testing.T) {
	repo := &mockPhotoRepository{
		listPhotosFunc: func(ctx context.Context) ([]domain.Photo, error) {
			return []domain.Photo{{Id: 1}, {Id: 2}}, nil
		},
	}
	usecase := newTestUsecases(repo, &mockObjectStorage{}, &mockNormalizer{})

	photos, err := usecase.ListPhotos(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(photos) != 2 {
		t.Errorf("Expected 2 photos, got %d", len(photos))
	}
}

func TestDeletePhoto_Success(t *testing.T) {
	var calls []string
	repo := &mockPhotoRepository{
		deletePhotoByIDFunc: func(ctx context.Context, id int64) error {
			calls = append(calls, "row")
			return nil
		},
	}
	storage := &mockObjectStorage{
		removeObjectFunc: func(ctx context.Context, key string) error {
			calls = append(calls, "blob:"+key)
			return nil
		},
	}
	usecase := newTestUsecases(repo, storage, &mockNormalizer{})

	if err := usecase.DeletePhoto(context.Background(), 3); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(calls) != 2 || calls[0] != "blob:a.webp" || calls[1] != "row" {
		t.Errorf("Expected blob then row, got %v", calls)
	}
}

func TestDeletePhoto_NotFound_NoBlobOp(t *testing.T) {
	repo := &mockPhotoRepository{
		getPhotoByIDFunc: func(ctx context.Context, id int64) (*domain.Photo, error) {
			return nil, domain.ErrPhotoNotFound
		},
	}
	storage := &mockObjectStorage{
		removeObjectFunc: func(ctx context.Context, key string) error {
			t.Fatal("Expected no blob operation")
			return nil
		},
	}
	usecase := newTestUsecases(repo, storage, &mockNormalizer{})

	if err := usecase.DeletePhoto(context.Background(), 99); !errors.Is(err, domain.ErrPhotoNotFound) {
		t.Fatalf("Expected ErrPhotoNotFound, got %v", err)
	}
}

func TestDeletePhoto_BlobErrorsStillDeleteRow(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"blob missing", &domain.BlobError{Kind: domain.ErrBlobNotFound, Err: errors.New("NoSuchKey")}},
		{"blob store down", &domain.BlobError{Kind: domain.ErrBlobTransient, Err: errors.New("timeout")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rowDeleted := false
			repo := &mockPhotoRepository{
				deletePhotoByIDFunc: func(ctx context.Context, id int64) error {
					rowDeleted = true
					return nil
				},
			}
			storage := &mockObjectStorage{
				removeObjectFunc: func(ctx context.Context, key string) error { return tt.err },
			}
			usecase := newTestUsecases(repo, storage, &mockNormalizer{})

			if err := usecase.DeletePhoto(context.Background(), 1); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if !rowDeleted {
				t.Error("Expected row to be deleted")
			}
		})
	}
}

func TestRepairOrientation_RewritesAndFlips(t *testing.T) {
	var putKey string
	var updated *bool
	repo := &mockPhotoRepository{
		getPhotoByIDFunc: func(ctx context.Context, id int64) (*domain.Photo, error) {
			return &domain.Photo{Id: id, Name: "old.webp", IsHorizontal: true}, nil
		},
		updateOrientationFunc: func(ctx context.Context, id int64, isHorizontal bool) error {
			updated = &isHorizontal
			return nil
		},
	}
	storage := &mockObjectStorage{
		putObjectFunc: func(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
			putKey = key
			return "", nil
		},
	}
	norm := &mockNormalizer{
		renormalizeFunc: func(data []byte, key string) (*domain.NormalizedImage, error) {
			if string(data) != "stored" {
				t.Errorf("Expected stored bytes, got %q", data)
			}
			return &domain.NormalizedImage{Data: []byte("rotated"), Key: key, IsHorizontal: false, Rewritten: true}, nil
		},
	}
	usecase := newTestUsecases(repo, storage, norm)

	result, err := usecase.RepairOrientation(context.Background(), 4)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !result.Rewritten || !result.Flipped || result.IsHorizontal {
		t.Errorf("Unexpected result %+v", result)
	}
	if putKey != "old.webp" {
		t.Errorf("Expected blob rewritten under same key, got %s", putKey)
	}
	if updated == nil || *updated {
		t.Error("Expected orientation to be updated to false")
	}
}

func TestRepairOrientation_NothingToDo(t *testing.T) {
	repo := &mockPhotoRepository{
		updateOrientationFunc: func(ctx context.Context, id int64, isHorizontal bool) error {
			t.Fatal("Expected no row update")
			return nil
		},
	}
	storage := &mockObjectStorage{
		putObjectFunc: func(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
			t.Fatal("Expected no blob write")
			return "", nil
		},
	}
	usecase := newTestUsecases(repo, storage, &mockNormalizer{})

	result, err := usecase.RepairOrientation(context.Background(), 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Rewritten || result.Flipped {
		t.Errorf("Expected no changes, got %+v", result)
	}
}

func TestScheduleOrientationRepair_Queued(t *testing.T) {
	repo := &mockPhotoRepository{
		listPhotosFunc: func(ctx context.Context) ([]domain.Photo, error) {
			return []domain.Photo{{Id: 1}, {Id: 2}, {Id: 3}}, nil
		},
	}
	producer := &mockProducer{}
	usecase := NewPhotoUsecases(repo, &mockObjectStorage{}, &mockNormalizer{}, producer, zap.NewNop())

	report, err := usecase.ScheduleOrientationRepair(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if report.Queued != 3 || len(producer.sent) != 3 {
		t.Errorf("Expected 3 queued tasks, got %d (%v)", report.Queued, producer.sent)
	}
}

func TestScheduleOrientationRepair_Inline(t *testing.T) {
	repo := &mockPhotoRepository{
		listPhotosFunc: func(ctx context.Context) ([]domain.Photo, error) {
			return []domain.Photo{{Id: 1}, {Id: 2}}, nil
		},
		getPhotoByIDFunc: func(ctx context.Context, id int64) (*domain.Photo, error) {
			if id == 2 {
				return nil, domain.ErrPhotoNotFound
			}
			return &domain.Photo{Id: id, Name: "a.webp"}, nil
		},
	}
	observer := &countingObserver{}
	usecase := newTestUsecases(repo, &mockObjectStorage{}, &mockNormalizer{}, WithObserver(observer))

	report, err := usecase.ScheduleOrientationRepair(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if report.Queued != 0 || len(report.Results) != 2 {
		t.Fatalf("Expected 2 inline results, got %+v", report)
	}
	if report.Results[0].Error != "" {
		t.Errorf("Expected first repair to succeed, got %s", report.Results[0].Error)
	}
	if report.Results[1].PhotoID != 2 || report.Results[1].Error != "photo not found" {
		t.Errorf("Expected not found for second photo, got %+v", report.Results[1])
	}
	if observer.repairs != 2 {
		t.Errorf("Expected 2 repairs recorded, got %d", observer.repairs)
	}
}
