package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// Topics published by the quiz engine. Downstream consumers (notification,
// statistics export) subscribe to these.
const (
	TopicTestFinalized     = "quiz.test.finalized"
	TopicInstanceSubmitted = "quiz.instance.submitted"
)

// TestFinalizedEvent is emitted after the Allocator commits all instances
// for a test.
type TestFinalizedEvent struct {
	TestID        uint      `json:"test_id"`
	GroupID       uint      `json:"group_id"`
	InstanceCount int       `json:"instance_count"`
	Unique        bool      `json:"unique"`
	FinalizedBy   string    `json:"finalized_by"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// InstanceSubmittedEvent is emitted after finish-write commits, including
// zero-score expiry submissions.
type InstanceSubmittedEvent struct {
	InstanceID uint      `json:"instance_id"`
	TestID     uint      `json:"test_id"`
	UserID     string    `json:"user_id"`
	Score      int       `json:"score"`
	MaxScore   int       `json:"max_score"`
	Expired    bool      `json:"expired"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher publishes domain events. Publishing is best-effort from the
// engine's point of view; failures are logged by callers, never rolled back
// into the business transaction.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

type watermillPublisher struct {
	publisher message.Publisher
}

// NewGoChannelPublisher returns an in-process publisher, used in development
// and tests where no broker is available.
func NewGoChannelPublisher(logger *slog.Logger) EventPublisher {
	pub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
	return &watermillPublisher{publisher: pub}
}

// NewKafkaPublisher returns a Kafka-backed publisher.
func NewKafkaPublisher(brokers []string, logger *slog.Logger) (EventPublisher, error) {
	pub, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}
	return &watermillPublisher{publisher: pub}, nil
}

func (p *watermillPublisher) Publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	return p.publisher.Publish(topic, msg)
}

func (p *watermillPublisher) Close() error {
	return p.publisher.Close()
}
