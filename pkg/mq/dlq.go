package mq

import (
	"fmt"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DLQExchangeName = "events.dlq"

	headerOriginalError = "x-original-error"
	headerFailedAt      = "x-failed-at"
	headerFailedBy      = "x-failed-by"
)

// DeclareDLQExchange declares the dead letter exchange.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(DLQExchangeName, amqp091.ExchangeTopic, true, false, false, false, nil)
}

// DLQQueueName maps a binding pattern to its dead letter queue name, so
// "task.*" parks in "task.any.dlq".
func DLQQueueName(pattern string) string {
	r := strings.NewReplacer("#", "all", "*", "any")
	return r.Replace(pattern) + ".dlq"
}

// DeclareDLQQueue declares a durable dead letter queue bound to pattern.
func DeclareDLQQueue(ch *amqp091.Channel, pattern string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(DLQQueueName(pattern), true, false, false, false, nil)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue %s: %w", pattern, err)
	}
	if err := ch.QueueBind(q.Name, pattern, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue %s: %w", q.Name, err)
	}
	return q, nil
}

func dlqHeaders(originalError string, now time.Time) amqp091.Table {
	return amqp091.Table{
		headerOriginalError: originalError,
		headerFailedAt:      now.UTC().Format(time.RFC3339),
		headerFailedBy:      "taskagent-worker",
	}
}

// PublishToDLQ parks a message that will not succeed. The original routing
// key is kept so the message lands in the matching DLQ queue.
func (p *Publisher) PublishToDLQ(routingKey string, payload []byte, originalError string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.Publish(DLQExchangeName, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Headers:      dlqHeaders(originalError, time.Now()),
	})
}

// DeclareDLQs declares one dead letter queue per binding pattern.
func (p *Publisher) DeclareDLQs(patterns ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pattern := range patterns {
		if _, err := DeclareDLQQueue(p.channel, pattern); err != nil {
			return err
		}
	}
	return nil
}
