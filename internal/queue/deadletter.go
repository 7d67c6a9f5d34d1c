package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DeadLetterEntry is one parked message as seen by the inspection endpoint.
type DeadLetterEntry struct {
	Message DeliveryMessage `json:"message"`
	DeadAt  time.Time       `json:"deadAt"`
	Reason  string          `json:"reason,omitempty"`
}

// DeadLetters gives manual access to the dlq.* queues. Nothing here runs on
// a loop: parked messages move only when an operator asks.
type DeadLetters interface {
	PublishDead(ctx context.Context, channel domain.Channel, msg DeliveryMessage, reason string) error
	Depth(ctx context.Context, channel domain.Channel) (int, error)
	Peek(ctx context.Context, channel domain.Channel, limit int) ([]DeadLetterEntry, error)
	Replay(ctx context.Context, channel domain.Channel, limit int) (int, error)
}

type RabbitMQDeadLetters struct {
	client *RabbitMQ
	logger *zap.Logger
}

func NewRabbitMQDeadLetters(client *RabbitMQ, logger *zap.Logger) *RabbitMQDeadLetters {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitMQDeadLetters{client: client, logger: logger}
}

// PublishDead parks a message on the channel's dead-letter queue. Used when
// a request exhausts its attempts; broker-side DLX routing covers rejects.
func (d *RabbitMQDeadLetters) PublishDead(ctx context.Context, channel domain.Channel, msg DeliveryMessage, reason string) error {
	if d == nil || d.client == nil {
		return fmt.Errorf("dead letter store is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid delivery message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery message: %w", err)
	}

	ch, err := d.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    msg.NotificationID,
		Body:         payload,
		Headers: amqp.Table{
			"x-death-reason": reason,
		},
	}

	if err := ch.PublishWithContext(ctx, "", DLQName(channel), false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}

	return nil
}

func (d *RabbitMQDeadLetters) Depth(ctx context.Context, channel domain.Channel) (int, error) {
	if d == nil || d.client == nil {
		return 0, fmt.Errorf("dead letter store is not initialized")
	}

	ch, err := d.client.channel(ctx)
	if err != nil {
		return 0, err
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(DLQName(channel), true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect dlq %q: %w", DLQName(channel), err)
	}

	return q.Messages, nil
}

// Peek reads up to limit parked messages without consuming them. Requeueing
// may reorder the tail; inspection tolerates that.
func (d *RabbitMQDeadLetters) Peek(ctx context.Context, channel domain.Channel, limit int) ([]DeadLetterEntry, error) {
	if d == nil || d.client == nil {
		return nil, fmt.Errorf("dead letter store is not initialized")
	}
	if limit < 1 {
		limit = 20
	}

	ch, err := d.client.channel(ctx)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	queueName := DLQName(channel)
	entries := make([]DeadLetterEntry, 0, limit)
	var tags []uint64

	for len(entries) < limit {
		delivery, ok, err := ch.Get(queueName, false)
		if err != nil {
			return nil, fmt.Errorf("failed to read dlq %q: %w", queueName, err)
		}
		if !ok {
			break
		}
		tags = append(tags, delivery.DeliveryTag)

		var msg DeliveryMessage
		if err := json.Unmarshal(delivery.Body, &msg); err != nil {
			d.logger.Warn("unreadable dead letter",
				zap.String("queue", queueName),
				zap.Error(err),
			)
			continue
		}

		entry := DeadLetterEntry{Message: msg, DeadAt: delivery.Timestamp}
		if reason, ok := delivery.Headers["x-death-reason"].(string); ok {
			entry.Reason = reason
		}
		entries = append(entries, entry)
	}

	// Put everything back; peeking must not drain the queue.
	for _, tag := range tags {
		if err := ch.Nack(tag, false, true); err != nil {
			return nil, fmt.Errorf("failed to requeue dead letter: %w", err)
		}
	}

	return entries, nil
}

// Replay moves up to limit parked messages back onto the channel work
// queue. Unreadable payloads are dropped rather than requeued forever.
func (d *RabbitMQDeadLetters) Replay(ctx context.Context, channel domain.Channel, limit int) (int, error) {
	if d == nil || d.client == nil {
		return 0, fmt.Errorf("dead letter store is not initialized")
	}
	if limit < 1 {
		limit = 100
	}

	ch, err := d.client.channel(ctx)
	if err != nil {
		return 0, err
	}
	defer ch.Close()

	dlqName := DLQName(channel)
	workQueue := QueueName(channel)
	replayed := 0

	for replayed < limit {
		delivery, ok, err := ch.Get(dlqName, false)
		if err != nil {
			return replayed, fmt.Errorf("failed to read dlq %q: %w", dlqName, err)
		}
		if !ok {
			break
		}

		var msg DeliveryMessage
		if err := json.Unmarshal(delivery.Body, &msg); err != nil {
			d.logger.Warn("dropping unreadable dead letter",
				zap.String("queue", dlqName),
				zap.Error(err),
			)
			if rejectErr := delivery.Reject(false); rejectErr != nil {
				return replayed, fmt.Errorf("failed to drop dead letter: %w", rejectErr)
			}
			continue
		}

		// The parked request row is terminal by now; the flag tells the
		// worker to reopen it instead of skipping on the terminal guard.
		msg.Replay = true
		body, err := json.Marshal(msg)
		if err != nil {
			return replayed, fmt.Errorf("failed to marshal replayed dead letter: %w", err)
		}

		publishing := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    msg.NotificationID,
			Body:         body,
		}
		if err := ch.PublishWithContext(ctx, "", workQueue, false, false, publishing); err != nil {
			// Leave the message parked if the republish failed.
			if nackErr := delivery.Nack(false, true); nackErr != nil {
				return replayed, fmt.Errorf("republish and requeue both failed: %w", nackErr)
			}
			return replayed, fmt.Errorf("failed to republish dead letter: %w", err)
		}

		if err := delivery.Ack(false); err != nil {
			return replayed, fmt.Errorf("failed to ack replayed dead letter: %w", err)
		}
		replayed++
	}

	return replayed, nil
}
