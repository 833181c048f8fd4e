package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dontpanicw/PhotoGallery/config"
	"github.com/dontpanicw/PhotoGallery/image_worker/internal/consumer"
	"github.com/dontpanicw/PhotoGallery/image_worker/internal/port"
	"github.com/dontpanicw/PhotoGallery/internal/app"
	"github.com/dontpanicw/PhotoGallery/pkg/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log.Named("worker")); err != nil {
		log.Error("worker stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// воркер сам чинит фотографии, продюсер ему не нужен
	components, err := app.Build(ctx, cfg, log, app.BuildOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.Warn("failed to close clients", zap.Error(err))
		}
	}()

	c, err := newConsumer(cfg, components, log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Start(ctx)
	}()

	select {
	case err := <-errCh:
		log.Warn("consumer stopped before shutdown")
		return errors.Join(err, c.Close())
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	// ждём, пока воркеры допишут текущие сообщения
	select {
	case <-errCh:
		log.Info("worker stopped gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn("shutdown timeout exceeded")
	}
	return c.Close()
}

func newConsumer(cfg *config.Config, components *app.Components, log *zap.Logger) (port.Consumer, error) {
	switch cfg.Broker {
	case config.BrokerKafka:
		return consumer.NewKafkaConsumer(cfg, components.Usecases, log.Named("kafka")), nil
	case config.BrokerRabbitMQ:
		return consumer.NewRabbitMQConsumer(cfg.RabbitMQURL, cfg.RabbitMQQueue, components.Usecases, log.Named("rabbitmq"))
	default:
		return nil, fmt.Errorf("worker needs BROKER=kafka or BROKER=rabbitmq, got %q", cfg.Broker)
	}
}
