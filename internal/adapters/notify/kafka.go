package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alejandrodnm/derby/internal/domain"
)

// messageWriter es la parte de *kafka.Writer que usa el publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implementa ports.EventPublisher sobre un tópico Kafka.
// La clave de cada mensaje es el id de la carrera, así que los eventos de
// una carrera quedan en la misma partición y en orden.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher crea el writer con timeouts cortos.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("notify.NewKafkaPublisher: no brokers")
	}
	if topic == "" {
		return nil, fmt.Errorf("notify.NewKafkaPublisher: empty topic")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
	}
	return &KafkaPublisher{writer: w, topic: topic}, nil
}

// Publish serializa los eventos en JSON y los escribe en un solo lote.
func (p *KafkaPublisher) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("notify.KafkaPublisher: marshal %s: %w", e.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(fmt.Sprintf("race-%d", e.RaceID)),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
				{Key: "event_id", Value: []byte(e.ID)},
			},
			Time: time.Now(),
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("notify.KafkaPublisher: write %d events to %s: %w", len(msgs), p.topic, err)
	}
	slog.Debug("events published", "topic", p.topic, "count", len(msgs))
	return nil
}

// Close cierra el writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
