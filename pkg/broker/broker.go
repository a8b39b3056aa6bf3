// Package broker defines the contract between subscriptions and a message
// broker that offers fanout broadcast points, named queues with idle expiry,
// consumers with manual acknowledgment and per-channel prefetch.
//
// Two implementations live in subpackages: amqp (RabbitMQ) and memory
// (in-process, used for tests and single-node development).
package broker

import (
	"context"
	"time"
)

// Connection is a shared link to the broker. Subscriptions never own it.
type Connection interface {
	// Channel opens a dedicated channel limited to prefetch unacknowledged
	// deliveries per consumer.
	Channel(prefetch int) (Channel, error)
	// Close tears down the connection and every channel opened on it.
	Close() error
}

// BroadcastOptions configures a broadcast point declaration.
type BroadcastOptions struct {
	// AutoDelete removes the broadcast point once its last queue is unbound.
	AutoDelete bool
}

// QueueOptions configures a queue declaration.
type QueueOptions struct {
	// Expires is how long the queue survives with no consumer attached.
	// Zero disables expiry.
	Expires time.Duration
}

// Exchange identifies a declared broadcast point.
type Exchange struct {
	Name string
}

// Queue identifies a declared queue. Messages and Consumers are the counts
// reported by the broker at declaration time.
type Queue struct {
	Name      string
	Messages  int
	Consumers int
}

// Channel is a single-owner session on a Connection. Implementations do not
// expect concurrent use except for Publish.
type Channel interface {
	// DeclareBroadcast declares a fanout broadcast point. Idempotent.
	DeclareBroadcast(name string, opts BroadcastOptions) (Exchange, error)
	// DeclareQueue declares a named queue. Idempotent as long as opts match
	// the existing queue.
	DeclareQueue(name string, opts QueueOptions) (Queue, error)
	// Bind routes every message published to ex into q.
	Bind(q Queue, ex Exchange) error
	// Consumer prepares a consumer on q. Nothing is delivered until
	// Consume is called.
	Consumer(q Queue, tag string) Consumer
	// Publish sends payload to every queue bound to the broadcast point.
	Publish(ctx context.Context, exchange string, payload []byte) error
	// Close releases the channel. Unacknowledged deliveries are returned
	// to their queues.
	Close() error
}

// DeliveryHandler processes one delivery. Returning an error leaves the
// delivery unacknowledged; the consumer then requeues it.
type DeliveryHandler func(d Delivery) error

// Consumer is a broker-side handle bound to one queue.
type Consumer interface {
	// Tag returns the consumer tag.
	Tag() string
	// OnDelivery registers the handler. Must be called before Consume.
	OnDelivery(h DeliveryHandler)
	// Consume starts delivery.
	Consume() error
	// Cancel stops delivery. Safe to call more than once. A delivery
	// already being handled may still be acknowledged after Cancel returns.
	Cancel() error
}

// Acknowledger settles deliveries on the channel they arrived on.
type Acknowledger interface {
	Ack(tag uint64) error
	Nack(tag uint64, requeue bool) error
}

// Delivery is one message handed to a consumer.
type Delivery struct {
	Acknowledger Acknowledger

	ConsumerTag string
	DeliveryTag uint64
	Exchange    string
	Redelivered bool
	Body        []byte
}

// Ack removes the message from its queue.
func (d Delivery) Ack() error {
	if d.Acknowledger == nil {
		return ErrDeliveryNotInitialized
	}
	return d.Acknowledger.Ack(d.DeliveryTag)
}

// Nack rejects the message, returning it to its queue when requeue is true.
func (d Delivery) Nack(requeue bool) error {
	if d.Acknowledger == nil {
		return ErrDeliveryNotInitialized
	}
	return d.Acknowledger.Nack(d.DeliveryTag, requeue)
}
