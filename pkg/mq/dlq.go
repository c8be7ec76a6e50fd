package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// DLQExchangeName receives messages a consumer gave up on.
const DLQExchangeName = "events.dlq"

func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares <queue>.dlq and binds it to the DLQ exchange.
func DeclareDLQQueue(ch *amqp091.Channel, queueName, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(queueName+".dlq", true, false, false, false, nil)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}
	return q, nil
}

// deadLetterArgs routes rejected (requeue=false) messages to the DLQ exchange.
func deadLetterArgs(routingKey string) amqp091.Table {
	return amqp091.Table{
		"x-dead-letter-exchange":    DLQExchangeName,
		"x-dead-letter-routing-key": routingKey,
	}
}
