package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TypeCreated          = "donation.created"
	TypeCheckoutRecorded = "donation.checkout_recorded"
	TypeStatusChanged    = "donation.status_changed"
)

// DonationEvent is published after a durable state change of a donation.
type DonationEvent struct {
	Type              string    `json:"type"`
	DonationID        string    `json:"donation_id"`
	UserID            string    `json:"user_id"`
	Amount            string    `json:"amount"`
	DonationType      string    `json:"donation_type"`
	FromStatus        string    `json:"from_status,omitempty"`
	ToStatus          string    `json:"to_status,omitempty"`
	CheckoutRequestID string    `json:"checkout_request_id,omitempty"`
	Source            string    `json:"source"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev DonationEvent) error
	Close() error
}

/* ===================== Kafka ===================== */

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Publish keys messages by donation id so one donation's events stay ordered.
func (k *KafkaPublisher) Publish(ctx context.Context, ev DonationEvent) error {
	v, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.DonationID),
		Value: v,
		Time:  ev.OccurredAt,
	})
}

func (k *KafkaPublisher) Close() error { return k.writer.Close() }

/* ===================== Noop ===================== */

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, DonationEvent) error { return nil }
func (NoopPublisher) Close() error                                 { return nil }

// New picks Kafka when brokers are given.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		log.Println("[INFO] KAFKA_BROKERS empty, donation events disabled")
		return NoopPublisher{}
	}
	log.Printf("[INFO] publishing donation events to kafka topic=%s brokers=%v", topic, brokers)
	return NewKafkaPublisher(brokers, topic)
}
