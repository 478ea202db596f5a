package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-qrinventory/internal/logger"
	"ms-qrinventory/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	topic  string
	log    *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}
	return &Producer{writer: writer, topic: topic, log: log}
}

// Notify publishes n keyed by its kind so one kind stays ordered.
func (p *Producer) Notify(ctx context.Context, n models.Notification) error {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	msgBytes, err := json.Marshal(n)
	if err != nil {
		return err
	}

	p.log.LogKafka("PUBLISH", p.topic, fmt.Sprintf("%s %s", n.Kind, n.Title))

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.Kind),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(n.Kind)},
		},
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// LogNotifier stands in for the producer when kafka is disabled.
type LogNotifier struct {
	Log *logger.Logger
}

func (l LogNotifier) Notify(_ context.Context, n models.Notification) error {
	l.Log.Info("NOTIFY", fmt.Sprintf("%s to %v: %s", n.Kind, n.Targets, n.Title))
	return nil
}
