package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher publishes delivery jobs. It is safe for concurrent use; an
// AMQP channel is not, so publishes are serialized.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	closer   func() error
}

// NewPublisher connects, declares the topology and returns a Publisher.
func NewPublisher(url string, t Topology) (*Publisher, error) {
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
	if _, err := declareQueue(ch, t); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, exchange: t.Exchange, closer: ch.Close}, nil
}

// Publish sends one job as a persistent JSON message. The job key is used
// as the AMQP message id.
func (p *Publisher) Publish(ctx context.Context, job DeliveryJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.Key(),
		Timestamp:    job.EnqueuedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", job.Key(), err)
	}
	return nil
}

// IsConnected reports whether the underlying connection is still open.
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close closes the channel and connection.
func (p *Publisher) Close() {
	if p.closer != nil {
		_ = p.closer()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
