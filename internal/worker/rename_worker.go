package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"geminichat/internal/app"
	"geminichat/internal/platform/rabbitmq"
)

// RenameWorker consumes queued rename jobs and applies best-effort
// auto-titling. A session with no messages yet is an expected
// precondition failure and is acknowledged quietly; anything else is
// logged as a real problem.
type RenameWorker struct {
	conn      *amqp.Connection
	titles    *app.TitleService
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRenameWorker(conn *amqp.Connection, titles *app.TitleService, queueName string) *RenameWorker {
	return &RenameWorker{
		conn:      conn,
		titles:    titles,
		queueName: queueName,
	}
}

func (w *RenameWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare rename queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume rename queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *RenameWorker) handle(ctx context.Context, d amqp.Delivery) {
	var job rabbitmq.RenameJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("worker decode rename job failed: %v", err)
		_ = d.Nack(false, false)
		return
	}

	if _, err := w.titles.AutoRename(ctx, job.SessionID, job.UserID); err != nil {
		if errors.Is(err, app.ErrRenameNoMessages) {
			_ = d.Ack(false)
			return
		}
		log.Printf("worker auto rename failed: session=%s err=%v", job.SessionID, err)
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}

func (w *RenameWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
