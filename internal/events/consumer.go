package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"medprep/internal/metrics"
	"medprep/internal/service"
)

const queueName = "medprep-streak-activity"

// StreakUpdater is the part of the streak service the consumer drives
type StreakUpdater interface {
	UpdateStreak(ctx context.Context, ownerID string, force bool) service.StreakUpdate
	UpdateStreakFor(ctx context.Context, ownerID string, trigger service.ActivityRef, force bool) service.StreakUpdate
}

// action is what happens to a delivery after handling
type action string

const (
	actionAck     action = "ack"
	actionRequeue action = "requeue"
	actionDrop    action = "drop"
)

// EventConsumer feeds activity.recorded events into the streak tracker
type EventConsumer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	streaks StreakUpdater
	enabled bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEventConsumer connects, declares the exchange and queue and binds the queue.
// An empty URI yields a disabled consumer.
func NewEventConsumer(rabbitURI string, streaks StreakUpdater) (*EventConsumer, error) {
	if rabbitURI == "" {
		slog.Info("event consumption disabled: RABBITMQ_URI not configured")
		return &EventConsumer{streaks: streaks, enabled: false}, nil
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

	closeAll := func() {
		channel.Close()
		conn.Close()
	}

	if err := channel.Qos(
		10,    // prefetch count
		0,     // prefetch size
		false, // global
	); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := declareExchange(channel); err != nil {
		closeAll()
		return nil, err
	}

	if _, err := channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(
		queueName,                 // queue name
		EventTypeActivityRecorded, // routing key
		ExchangeName,              // exchange
		false,                     // no-wait
		nil,                       // arguments
	); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to bind queue to exchange: %w", err)
	}

	return &EventConsumer{conn: conn, channel: channel, streaks: streaks, enabled: true}, nil
}

// Start begins consuming in the background until Close is called or ctx ends
func (c *EventConsumer) Start(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	msgs, err := c.channel.Consume(
		queueName, // queue
		"",        // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx, msgs)
	}()

	slog.Info("activity event consumer started", "queue", queueName)
	return nil
}

func (c *EventConsumer) consume(ctx context.Context, msgs <-chan amqp091.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("activity event channel closed")
				return
			}
			c.settle(msg, c.handle(ctx, msg.Body, msg.Redelivered))
		}
	}
}

func (c *EventConsumer) settle(msg amqp091.Delivery, act action) {
	metrics.ActivityEvents.WithLabelValues(string(act)).Inc()

	var err error
	switch act {
	case actionAck:
		err = msg.Ack(false)
	case actionRequeue:
		err = msg.Nack(false, true)
	default:
		err = msg.Nack(false, false)
	}
	if err != nil {
		slog.Error("failed to settle activity event", "action", act, "error", err)
	}
}

// handle applies one event. Malformed events are dropped; failed updates are
// requeued once and dropped on redelivery.
func (c *EventConsumer) handle(ctx context.Context, body []byte, redelivered bool) action {
	var event ActivityRecordedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		slog.Warn("dropping malformed activity event", "error", err)
		return actionDrop
	}
	if event.OwnerID == "" {
		slog.Warn("dropping activity event without owner", "kind", event.Kind)
		return actionDrop
	}

	var update service.StreakUpdate
	if event.RecordID != "" {
		trigger := service.ActivityRef{Kind: event.Kind, ID: event.RecordID}
		if err := trigger.Validate(); err != nil {
			slog.Warn("dropping activity event with invalid record", "owner_id", event.OwnerID, "error", err)
			return actionDrop
		}
		update = c.streaks.UpdateStreakFor(ctx, event.OwnerID, trigger, event.Force)
	} else {
		update = c.streaks.UpdateStreak(ctx, event.OwnerID, event.Force)
	}
	if update.Outcome == service.OutcomeFailed {
		if redelivered {
			slog.Error("dropping activity event after retry", "owner_id", event.OwnerID, "error", update.Err)
			return actionDrop
		}
		return actionRequeue
	}
	return actionAck
}

// Close stops consuming and closes the connection
func (c *EventConsumer) Close() error {
	if !c.enabled {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if err := c.channel.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}
