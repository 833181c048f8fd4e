package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dontpanicw/PhotoGallery/config"
	"github.com/dontpanicw/PhotoGallery/image_worker/internal/port"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	kafkaGroupID = "photo-repair-workers"
	// сколько повторяем временную ошибку, прежде чем отбросить задачу
	kafkaRetryTimeout = time.Minute
)

var _ port.Consumer = (*KafkaConsumer)(nil)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConsumer struct {
	reader   messageReader
	repairer port.Repairer
	log      *zap.Logger
	retry    func() backoff.BackOff
}

func NewKafkaConsumer(cfg *config.Config, repairer port.Repairer, log *zap.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTaskTopic,
		GroupID:        kafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return &KafkaConsumer{
		reader:   reader,
		repairer: repairer,
		log:      log,
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = kafkaRetryTimeout
			return b
		},
	}
}

func (c *KafkaConsumer) Start(ctx context.Context) error {
	c.log.Info("consuming repair tasks from kafka", zap.Int("workers", workerCount))

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.startWorker(ctx, i)
		}()
	}
	wg.Wait()

	return nil
}

func (c *KafkaConsumer) startWorker(ctx context.Context, id int) {
	log := c.log.With(zap.Int("worker", id))
	log.Debug("worker started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Debug("worker stopped")
				return
			}
			log.Warn("failed to fetch message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if !c.process(ctx, log, msg) {
			// ctx отменён, незавершённую задачу не коммитим
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Warn("failed to commit message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// process retries transient failures in place and reports whether the offset
// can be committed. Kafka commits are cumulative: a later commit from another
// worker moves the group past any offset left behind, and that message would
// never be read again. A message is therefore finished here or dropped.
func (c *KafkaConsumer) process(ctx context.Context, log *zap.Logger, msg kafka.Message) bool {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := handle(ctx, c.repairer, log, msg.Value)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errPermanent):
			return backoff.Permanent(err)
		default:
			log.Warn("failed to process repair task",
				zap.Int64("offset", msg.Offset),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
	}, backoff.WithContext(c.retry(), ctx))

	switch {
	case err == nil:
		return true
	case ctx.Err() != nil:
		return false
	case errors.Is(err, errPermanent):
		log.Error("dropping repair task",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return true
	default:
		log.Error("dropping repair task after retries",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return true
	}
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		c.log.Info("closing kafka reader")
		return c.reader.Close()
	}
	return nil
}
