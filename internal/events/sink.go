package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"parkcore/internal/entities"
)

// Sink receives the engine's state-change events. Delivery to end users
// (push, websocket) is someone else's concern; the core only publishes.
type Sink interface {
	Publish(evt entities.Event)
}

// KafkaSink writes events as JSON messages keyed by booking ID, so all
// events for one booking land on the same partition in order.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish is best-effort: a failed publish is logged, never allowed to fail
// a booking transition that has already committed.
func (s *KafkaSink) Publish(evt entities.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("event sink: could not marshal %s event: %v", evt.Type, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(evt.BookingID),
		Value: payload,
		Time:  evt.At,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("event sink: failed to publish %s for booking %s: %v", evt.Type, evt.BookingID, err)
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink is the fallback when no brokers are configured.
type LogSink struct{}

func (LogSink) Publish(evt entities.Event) {
	log.Printf("event: %s booking=%s spot=%s", evt.Type, evt.BookingID, evt.SpotID)
}
