package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// New dials the broker and makes sure queue exists.
func New(ctx context.Context, url, queue string) (*amqp.Connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	deadline, _ := dialCtx.Deadline()
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial: amqp.DefaultDial(time.Until(deadline)),
	})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declare(ch, queue); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s failed: %w", queue, err)
	}
	return nil
}
