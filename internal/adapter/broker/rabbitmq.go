package broker

import (
	"context"
	"fmt"

	"github.com/dontpanicw/PhotoGallery/internal/port"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var _ port.Producer = (*RabbitMQProducer)(nil)

type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type RabbitMQProducer struct {
	conn    *amqp.Connection
	channel publisher
	queue   string
	log     *zap.Logger
}

func NewRabbitMQProducer(url, queueName string, log *zap.Logger) (*RabbitMQProducer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := DeclareQueue(ch, queueName); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQProducer{
		conn:    conn,
		channel: ch,
		queue:   queueName,
		log:     log,
	}, nil
}

// DeclareQueue declares the durable task queue shared by producer and consumer.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return q, nil
}

func (p *RabbitMQProducer) SendRepairTask(ctx context.Context, photoID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := encodeTask(photoID)
	if err != nil {
		return err
	}

	err = p.channel.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish repair task: %w", err)
	}

	p.log.Debug("repair task published", zap.Int64("photo_id", photoID))
	return nil
}

func (p *RabbitMQProducer) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
