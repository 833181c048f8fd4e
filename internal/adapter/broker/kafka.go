package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dontpanicw/PhotoGallery/config"
	"github.com/dontpanicw/PhotoGallery/internal/port"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var _ port.Producer = (*KafkaProducer)(nil)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer messageWriter
	log    *zap.Logger
}

func NewKafkaProducer(cfg *config.Config, log *zap.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTaskTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true, // Разрешаем автосоздание топика
	}

	// Пытаемся создать топик явно
	go ensureTopic(cfg, log)

	return &KafkaProducer{
		writer: writer,
		log:    log,
	}
}

func ensureTopic(cfg *config.Config, log *zap.Logger) {
	if len(cfg.KafkaBrokers) == 0 {
		return
	}
	conn, err := kafka.Dial("tcp", cfg.KafkaBrokers[0])
	if err != nil {
		log.Warn("failed to dial kafka for topic creation", zap.Error(err))
		return
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		log.Warn("failed to get kafka controller", zap.Error(err))
		return
	}

	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		log.Warn("failed to dial kafka controller", zap.Error(err))
		return
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.KafkaTaskTopic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil {
		// уже существующий топик тоже возвращает ошибку
		log.Info("topic creation skipped", zap.String("topic", cfg.KafkaTaskTopic), zap.Error(err))
		return
	}
	log.Info("topic created", zap.String("topic", cfg.KafkaTaskTopic))
}

func (p *KafkaProducer) SendRepairTask(ctx context.Context, photoID int64) error {
	value, err := encodeTask(photoID)
	if err != nil {
		return err
	}

	// Создаем контекст с таймаутом
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// ключ по id: задачи одной фотографии попадают в одну партицию
	err = p.writer.WriteMessages(sendCtx, kafka.Message{
		Key:   []byte(strconv.FormatInt(photoID, 10)),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to send repair task to kafka: %w", err)
	}

	p.log.Debug("repair task sent", zap.Int64("photo_id", photoID))
	return nil
}

func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
