package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventBookingFinalized is the event_type header value for published notices.
const EventBookingFinalized = "booking.finalized"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits booking notices as events so a downstream mailer or
// calendar service can act on them.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// bookingEvent is the JSON value written to Kafka.
type bookingEvent struct {
	EventID    string        `json:"event_id"`
	EventType  string        `json:"event_type"`
	OccurredAt time.Time     `json:"occurred_at"`
	Email      string        `json:"email"`
	StartISO   string        `json:"start_iso"`
	Notice     BookingNotice `json:"notice"`
}

// NewKafkaPublisher writes to topic on brokers. Messages are keyed by booking
// id so events for one booking stay ordered.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		now: time.Now,
	}
}

// SendBookingEmail implements Sink.
func (p *KafkaPublisher) SendBookingEmail(ctx context.Context, email string, n BookingNotice) error {
	ev := bookingEvent{
		EventID:    uuid.NewString(),
		EventType:  EventBookingFinalized,
		OccurredAt: p.now().UTC(),
		Email:      email,
		StartISO:   n.StartISO(),
		Notice:     n,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(n.BookingID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error { return p.writer.Close() }
