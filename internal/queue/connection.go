package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the exchange and queue jobs travel through.
type Topology struct {
	Exchange string
	Queue    string
}

// Dial opens a RabbitMQ connection.
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return conn, nil
}

// declareExchange declares the durable topic exchange.
func declareExchange(ch *amqp.Channel, t Topology) error {
	return ch.ExchangeDeclare(
		t.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
}

// declareQueue declares the durable job queue and binds it to the exchange.
func declareQueue(ch *amqp.Channel, t Topology) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(t.Queue, true, false, false, false, nil)
	if err != nil {
		return q, fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(q.Name, RoutingKey, t.Exchange, false, nil); err != nil {
		return q, fmt.Errorf("bind queue %s: %w", t.Queue, err)
	}
	return q, nil
}
