package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"medprep/internal/models"
)

// EventPublisher publishes tracker events to RabbitMQ
type EventPublisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	enabled bool
}

// NewEventPublisher connects and declares the exchange. An empty URI yields a
// disabled publisher that drops every event.
func NewEventPublisher(rabbitURI string) (*EventPublisher, error) {
	if rabbitURI == "" {
		slog.Info("event publishing disabled: RABBITMQ_URI not configured")
		return &EventPublisher{enabled: false}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := declareExchange(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	return &EventPublisher{conn: conn, channel: channel, enabled: true}, nil
}

func declareExchange(channel *amqp091.Channel) error {
	err := channel.ExchangeDeclare(
		ExchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}

// PublishStreakUpdated announces a persisted streak change
func (p *EventPublisher) PublishStreakUpdated(ctx context.Context, record *models.StreakRecord) error {
	return p.publish(ctx, EventTypeStreakUpdated, NewStreakUpdatedEvent(record))
}

// PublishActivityRecorded announces a committed activity record
func (p *EventPublisher) PublishActivityRecorded(ctx context.Context, ownerID string, kind models.ActivityKind, recordID string) error {
	return p.publish(ctx, EventTypeActivityRecorded, ActivityRecordedEvent{
		EventType: EventTypeActivityRecorded,
		OwnerID:   ownerID,
		Kind:      kind,
		RecordID:  recordID,
		Timestamp: time.Now().Unix(),
	})
}

func (p *EventPublisher) publish(ctx context.Context, routingKey string, event any) error {
	if !p.enabled {
		slog.Debug("event publishing disabled, dropping event", "routing_key", routingKey)
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		pubCtx,
		ExchangeName, // exchange
		routingKey,   // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("published event", "routing_key", routingKey)
	return nil
}

// Close closes the channel and connection
func (p *EventPublisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
