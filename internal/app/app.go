package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dontpanicw/PhotoGallery/config"
	"github.com/dontpanicw/PhotoGallery/internal/adapter/broker"
	"github.com/dontpanicw/PhotoGallery/internal/adapter/encoder"
	"github.com/dontpanicw/PhotoGallery/internal/adapter/repository/minio"
	"github.com/dontpanicw/PhotoGallery/internal/adapter/repository/postgres"
	"github.com/dontpanicw/PhotoGallery/internal/adapter/repository/s3"
	"github.com/dontpanicw/PhotoGallery/internal/adapter/repository/sqlite"
	"github.com/dontpanicw/PhotoGallery/internal/auth"
	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"github.com/dontpanicw/PhotoGallery/internal/input/http"
	"github.com/dontpanicw/PhotoGallery/internal/metrics"
	"github.com/dontpanicw/PhotoGallery/internal/normalizer"
	"github.com/dontpanicw/PhotoGallery/internal/port"
	"github.com/dontpanicw/PhotoGallery/internal/usecases"
	"github.com/dontpanicw/PhotoGallery/pkg/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const (
	dbWaitTimeout   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

type repository interface {
	port.PhotoRepository
	Close() error
}

// Components holds the clients shared by the API, the CLI commands and the
// repair worker. Everything is created once here and injected.
type Components struct {
	Log      *zap.Logger
	Repo     port.PhotoRepository
	Storage  port.ObjectStorage
	Producer port.Producer
	Usecases *usecases.PhotoUsecases
	Registry *prometheus.Registry

	closers []func() error
}

type BuildOptions struct {
	// WithProducer connects the configured broker. The worker leaves it off
	// so that repairs it consumes run in place.
	WithProducer bool
}

func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, opts BuildOptions) (*Components, error) {
	c := &Components{Log: log, Registry: prometheus.NewRegistry()}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	repo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	c.Repo = repo
	c.closers = append(c.closers, repo.Close)

	storage, err := openStorage(ctx, cfg, log)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := storage.Init(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	c.Storage = storage
	log.Info("blob store initialized", zap.String("backend", cfg.BlobBackend), zap.String("bucket", cfg.BucketName))

	if opts.WithProducer {
		producer, err := openProducer(cfg, log)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		if producer != nil {
			c.Producer = producer
			c.closers = append(c.closers, producer.Close)
		}
	}

	observer, err := metrics.NewPrometheusObserver(metrics.DefaultNamespace, c.Registry)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	norm := normalizer.NewNormalizer(encoder.NewWebPEncoder(), log.Named("normalizer"))
	c.Usecases = usecases.NewPhotoUsecases(c.Repo, c.Storage, norm, c.Producer, log.Named("usecases"),
		usecases.WithObserver(observer),
		usecases.WithUploadWorkers(cfg.UploadWorkers))

	return c, nil
}

// Close releases clients in reverse order of creation.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func openRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository, error) {
	switch cfg.DBDriver {
	case config.DBDriverSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		log.Info("connected to SQLite", zap.String("path", cfg.SQLitePath))
		return repo, nil
	default:
		repo, err := postgres.NewPhotoRepository(cfg)
		if err != nil {
			return nil, err
		}
		if err := waitForPostgres(ctx, repo, log); err != nil {
			_ = repo.Close()
			return nil, err
		}
		log.Info("connected to PostgreSQL")

		if err := migrations.Migrate(repo.Master(), migrations.Postgres); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		log.Info("migrations applied", zap.Int("version", migrations.Latest()))
		return repo, nil
	}
}

// waitForPostgres пингует мастер, пока база не станет доступной
func waitForPostgres(ctx context.Context, repo *postgres.PhotoRepository, log *zap.Logger) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = dbWaitTimeout

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := repo.Master().PingContext(ctx)
		if err != nil {
			log.Warn("waiting for PostgreSQL", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to database after %d attempts: %w", attempt, err)
	}
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (port.ObjectStorage, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendS3:
		return s3.NewS3Storage(ctx, cfg, log.Named("s3"))
	default:
		return minio.NewMinioClient(cfg, log.Named("minio"))
	}
}

func openProducer(cfg *config.Config, log *zap.Logger) (port.Producer, error) {
	switch cfg.Broker {
	case config.BrokerKafka:
		log.Info("kafka producer initialized", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTaskTopic))
		return broker.NewKafkaProducer(cfg, log.Named("kafka")), nil
	case config.BrokerRabbitMQ:
		producer, err := broker.NewRabbitMQProducer(cfg.RabbitMQURL, cfg.RabbitMQQueue, log.Named("rabbitmq"))
		if err != nil {
			return nil, err
		}
		log.Info("rabbitmq producer initialized", zap.String("queue", cfg.RabbitMQQueue))
		return producer, nil
	default:
		log.Info("no broker configured, repairs run in place")
		return nil, nil
	}
}

// Start runs the HTTP API until SIGINT or SIGTERM.
func Start(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := Build(ctx, cfg, log, BuildOptions{WithProducer: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("failed to close clients", zap.Error(err))
		}
	}()

	authenticator := auth.NewStaticAuthenticator(cfg.AppUser, cfg.AppPassword)
	if cfg.AppUser == "" || cfg.AppPassword == "" {
		log.Warn("APP_USER or APP_PASSWORD is empty, every authenticated request will be rejected")
	}

	handler := http.NewHandler(c.Usecases, authenticator, log.Named("http"), cfg.MaxUploadSize)
	srv := http.NewServer(cfg.HTTPPort, handler, c.Registry, log.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// Migrate applies pending schema migrations and exits.
func Migrate(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	repo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	return repo.Close()
}

// Repair runs one orientation repair pass. With a broker configured the
// tasks are queued for the worker.
func Repair(ctx context.Context, cfg *config.Config, log *zap.Logger) (*domain.RepairReport, error) {
	c, err := Build(ctx, cfg, log, BuildOptions{WithProducer: true})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("failed to close clients", zap.Error(err))
		}
	}()

	return c.Usecases.ScheduleOrientationRepair(ctx)
}
