// Package queue carries per-recipient delivery jobs over RabbitMQ.
//
// Jobs are published to a durable topic exchange and consumed with manual
// acknowledgement. Delivery is at-least-once: a handler error requeues the
// message, and the email log claim turns a redelivered job into a no-op.
package queue

import (
	"fmt"
	"time"
)

// RoutingKey is the routing key for delivery jobs.
const RoutingKey = "newsletter.delivery"

// DeliveryJob asks a worker to deliver one newsletter to one subscriber.
type DeliveryJob struct {
	NewsletterID string    `json:"newsletter_id"`
	SubscriberID string    `json:"subscriber_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// Key identifies the delivery the job refers to. Republished jobs share it.
func (j DeliveryJob) Key() string {
	return j.NewsletterID + ":" + j.SubscriberID
}

// Validate rejects jobs that cannot refer to a delivery.
func (j DeliveryJob) Validate() error {
	if j.NewsletterID == "" || j.SubscriberID == "" {
		return fmt.Errorf("delivery job %q: missing id", j.Key())
	}
	return nil
}
