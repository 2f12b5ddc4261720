package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RenameJob asks the rename worker to auto-title a session once its
// first turn has been persisted.
type RenameJob struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type RenamePublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewRenamePublisher(conn *amqp.Connection, queueName string) *RenamePublisher {
	return &RenamePublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *RenamePublisher) TriggerRename(ctx context.Context, sessionID, userID string) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare rename queue failed: %w", err)
	}

	payload, err := json.Marshal(RenameJob{SessionID: sessionID, UserID: userID})
	if err != nil {
		return fmt.Errorf("marshal rename job failed: %w", err)
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
		return fmt.Errorf("publish rename job failed: %w", err)
	}
	return nil
}
