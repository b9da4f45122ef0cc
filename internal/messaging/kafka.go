// Package messaging publishes library and preference activity events to
// Kafka for downstream analytics. Publishing is best-effort from the API's
// perspective: a broker outage degrades to a logged warning, never a
// failed user request.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/config"
)

const publishTimeout = 10 * time.Second

// PreferenceEvent records one explicit like/dislike action and the key it
// resolved to at the time.
type PreferenceEvent struct {
	UserID     uuid.UUID `json:"user_id"`
	Action     string    `json:"action"` // like or dislike
	Key        string    `json:"key"`
	Title      string    `json:"title,omitempty"`
	Authors    string    `json:"authors,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// LibraryEvent records a library mutation (add, update, delete, import).
type LibraryEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Action    string    `json:"action"`
	EntryID   int64     `json:"entry_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Count     int       `json:"count,omitempty"` // for imports
	Timestamp time.Time `json:"timestamp"`
}

// MessageBus owns the Kafka writers for both event streams.
type MessageBus struct {
	preferenceWriter *kafka.Writer
	libraryWriter    *kafka.Writer
	logger           *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // key by user for per-user ordering
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		}
	}

	return &MessageBus{
		preferenceWriter: newWriter(cfg.Kafka.Topics.PreferenceEvents),
		libraryWriter:    newWriter(cfg.Kafka.Topics.LibraryEvents),
		logger:           logger,
	}, nil
}

func (mb *MessageBus) PublishPreferenceEvent(event PreferenceEvent) error {
	event.Timestamp = time.Now().UTC()
	return mb.publish(mb.preferenceWriter, event.UserID, event, logrus.Fields{
		"user_id": event.UserID,
		"action":  event.Action,
		"key":     event.Key,
	})
}

func (mb *MessageBus) PublishLibraryEvent(event LibraryEvent) error {
	event.Timestamp = time.Now().UTC()
	return mb.publish(mb.libraryWriter, event.UserID, event, logrus.Fields{
		"user_id": event.UserID,
		"action":  event.Action,
	})
}

func (mb *MessageBus) publish(writer *kafka.Writer, userID uuid.UUID, payload interface{}, fields logrus.Fields) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(userID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "user_id", Value: []byte(userID.String())},
			{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := writer.WriteMessages(ctx, message); err != nil {
		mb.logger.WithError(err).WithFields(fields).Error("Failed to publish event to Kafka")
		return fmt.Errorf("failed to write event to Kafka: %w", err)
	}

	mb.logger.WithFields(fields).Debug("Event published to Kafka")
	return nil
}

func (mb *MessageBus) Close() error {
	var errors []error

	if err := mb.preferenceWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close preference writer: %w", err))
	}
	if err := mb.libraryWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close library writer: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errors)
	}
	return nil
}
