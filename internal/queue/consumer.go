package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/newsly/newsly/internal/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one job. Returning an error requeues the message.
type Handler func(ctx context.Context, job DeliveryJob) error

// Consumer reads delivery jobs from the job queue.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	tag      string
	handler  Handler
	prefetch int
}

// NewConsumer connects, declares the topology and sets the prefetch count.
// prefetch bounds how many unacknowledged jobs this consumer holds.
func NewConsumer(url string, t Topology, prefetch int, handler Handler) (*Consumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("consumer handler not set")
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	conn, err := Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, t); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := declareQueue(ch, t)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &Consumer{
		conn:     conn,
		ch:       ch,
		queue:    q.Name,
		tag:      "newsly-worker",
		handler:  handler,
		prefetch: prefetch,
	}, nil
}

// Run consumes until ctx is cancelled or the broker closes the delivery
// channel. Up to prefetch jobs are handled concurrently.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	logger.Info("queue: consuming", "queue", c.queue, "prefetch", c.prefetch)

	sem := make(chan struct{}, c.prefetch)
	for {
		select {
		case <-ctx.Done():
			_ = c.ch.Cancel(c.tag, false)
			// Wait for in-flight handlers.
			for i := 0; i < cap(sem); i++ {
				sem <- struct{}{}
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				c.process(ctx, d)
			}()
		}
	}
}

// process handles one delivery and guarantees it is acked or nacked.
// Malformed messages are dropped; handler errors and panics requeue.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("queue: handler panic", "message_id", d.MessageId, "panic", fmt.Sprint(r))
			if err := d.Nack(false, true); err != nil {
				logger.Error("queue: nack after panic", "error", err)
			}
		}
	}()

	var job DeliveryJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		logger.Error("queue: malformed job dropped", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := job.Validate(); err != nil {
		logger.Error("queue: invalid job dropped", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := c.handler(ctx, job); err != nil {
		logger.Warn("queue: job requeued", "job", job.Key(), "redelivered", d.Redelivered, "error", err)
		if err := d.Nack(false, true); err != nil {
			logger.Error("queue: nack", "job", job.Key(), "error", err)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		logger.Error("queue: ack", "job", job.Key(), "error", err)
	}
}

// Close closes the channel and connection.
func (c *Consumer) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
