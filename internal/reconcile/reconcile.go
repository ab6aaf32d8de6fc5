// Package reconcile retries deletes that left the chunk store and metadata
// registry inconsistent, via a durable RabbitMQ queue.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gridpix/gridpix/internal/storage"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// QueueDeletes holds delete-retry tasks for partially failed deletes.
	QueueDeletes = "file.delete.reconcile"
)

type deleteTask struct {
	FileID string `json:"file_id"`
}

// Client wraps an AMQP connection and channel with the reconcile queue
// declared.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial connects to the broker and declares the queue
func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(
		QueueDeletes,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Client{conn: conn, channel: ch}, nil
}

// Close closes the channel and connection
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// ScheduleDelete publishes a delete-retry task for fileID.
func (c *Client) ScheduleDelete(ctx context.Context, fileID string) error {
	body, err := json.Marshal(deleteTask{FileID: fileID})
	if err != nil {
		return err
	}
	return c.channel.PublishWithContext(
		ctx,
		"", // default exchange
		QueueDeletes,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// Deleter is the delete operation retried by the worker.
type Deleter interface {
	Delete(ctx context.Context, fileID string) error
}

// Worker consumes delete-retry tasks and re-runs the delete.
type Worker struct {
	client  *Client
	deleter Deleter
}

// NewWorker creates a worker consuming from the client's queue
func NewWorker(client *Client, deleter Deleter) *Worker {
	return &Worker{client: client, deleter: deleter}
}

// Run consumes tasks until ctx is canceled or the channel closes. A retry
// that fails again is requeued; a file that is already gone counts as
// reconciled.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.client.channel.Consume(
		QueueDeletes,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var task deleteTask
	if err := json.Unmarshal(d.Body, &task); err != nil {
		log.Printf("Dropping malformed reconcile task: %v", err)
		_ = d.Nack(false, false)
		return
	}

	err := w.deleter.Delete(ctx, task.FileID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("Delete retry for %s failed, requeueing: %v", task.FileID, err)
		_ = d.Nack(false, true)
		return
	}

	log.Printf("Reconciled delete for file %s", task.FileID)
	_ = d.Ack(false)
}
