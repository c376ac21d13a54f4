package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/TimoDeg/margin-hunter/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Producer publishes notification events to the notifier's queue. Events are
// marked persistent so alerts survive a broker restart alongside the durable
// queue.
type Producer struct {
	ch        *amqp.Channel
	queueName string
}

func NewProducer(ch *amqp.Channel, queueName string) *Producer {
	return &Producer{
		ch:        ch,
		queueName: queueName,
	}
}

func (p *Producer) PublishEvent(ctx context.Context, event models.NotificationEvent) error {
	const op = "rabbitmq.PublishEvent"

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
