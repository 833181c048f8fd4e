package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dontpanicw/PhotoGallery/image_worker/internal/port"
	"github.com/dontpanicw/PhotoGallery/internal/adapter/broker"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var _ port.Consumer = (*RabbitMQConsumer)(nil)

type RabbitMQConsumer struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
	repairer   port.Repairer
	log        *zap.Logger
}

func NewRabbitMQConsumer(url, queueName string, repairer port.Repairer, log *zap.Logger) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c := &RabbitMQConsumer{conn: conn, channel: ch, repairer: repairer, log: log}

	q, err := broker.DeclareQueue(ch, queueName)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	// не больше одного неподтверждённого сообщения на воркер
	if err := ch.Qos(workerCount, 0, false); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	c.deliveries, err = ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to consume queue %s: %w", q.Name, err)
	}
	return c, nil
}

func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	c.log.Info("consuming repair tasks from rabbitmq", zap.Int("workers", workerCount))

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

func (c *RabbitMQConsumer) startWorker(ctx context.Context, id int) {
	log := c.log.With(zap.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopped")
			return
		case msg, ok := <-c.deliveries:
			if !ok {
				log.Warn("delivery channel closed")
				return
			}
			c.process(ctx, log, msg)
		}
	}
}

// process acks handled and permanently failing messages. Other failures are
// requeued once and dropped on the second delivery.
func (c *RabbitMQConsumer) process(ctx context.Context, log *zap.Logger, msg amqp.Delivery) {
	err := handle(ctx, c.repairer, log, msg.Body)
	switch {
	case err == nil:
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Warn("failed to ack message", zap.Error(ackErr))
		}
	case errors.Is(err, errPermanent):
		log.Error("dropping repair task", zap.Error(err))
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Warn("failed to ack message", zap.Error(ackErr))
		}
	default:
		requeue := !msg.Redelivered
		log.Error("failed to process repair task", zap.Bool("requeue", requeue), zap.Error(err))
		if nackErr := msg.Nack(false, requeue); nackErr != nil {
			log.Warn("failed to nack message", zap.Error(nackErr))
		}
	}
}

func (c *RabbitMQConsumer) Close() error {
	var errs []error
	if c.channel != nil {
		errs = append(errs, c.channel.Close())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}
