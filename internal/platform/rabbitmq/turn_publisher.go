package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"dahdouh-ai/internal/model"
)

// TurnPublisher sends TurnEvents to a durable queue.
type TurnPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewTurnPublisher(conn *amqp.Connection, queueName string) *TurnPublisher {
	return &TurnPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *TurnPublisher) PublishTurn(ctx context.Context, event model.TurnEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declare(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal turn event failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish turn event failed: %w", err)
	}
	return nil
}

// Consume opens a channel bound to the queue. The caller closes the channel.
func Consume(conn *amqp.Connection, queueName string) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("open consumer channel failed: %w", err)
	}
	if err := declare(ch, queueName); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("set consumer qos failed: %w", err)
	}
	deliveries, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("consume queue failed: %w", err)
	}
	return ch, deliveries, nil
}
