package amqp

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
)

// Channel wraps an AMQP channel.
type Channel struct {
	ch     *amqp.Channel
	logger *zap.Logger

	// serializes publishes; the consumer goroutines only ack and nack
	pubMu sync.Mutex
}

var _ broker.Channel = (*Channel)(nil)

// DeclareBroadcast declares a non-durable fanout exchange.
func (c *Channel) DeclareBroadcast(name string, opts broker.BroadcastOptions) (broker.Exchange, error) {
	err := c.ch.ExchangeDeclare(
		name,
		amqp.ExchangeFanout,
		false,           // durable
		opts.AutoDelete, // autoDelete
		false,           // internal
		false,           // noWait
		nil,
	)
	if err != nil {
		return broker.Exchange{}, translate("declare exchange", err)
	}
	return broker.Exchange{Name: name}, nil
}

// DeclareQueue declares a non-durable queue. A positive Expires is sent as
// the x-expires argument in milliseconds.
func (c *Channel) DeclareQueue(name string, opts broker.QueueOptions) (broker.Queue, error) {
	q, err := c.ch.QueueDeclare(
		name,
		false, // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		queueArgs(opts),
	)
	if err != nil {
		return broker.Queue{}, translate("declare queue", err)
	}
	return broker.Queue{Name: q.Name, Messages: q.Messages, Consumers: q.Consumers}, nil
}

// queueArgs sends x-expires in whole milliseconds, rounded up; the broker
// rejects 0.
func queueArgs(opts broker.QueueOptions) amqp.Table {
	if opts.Expires <= 0 {
		return nil
	}
	ms := int64((opts.Expires + time.Millisecond - 1) / time.Millisecond)
	return amqp.Table{"x-expires": ms}
}

// Bind binds q to the fanout exchange. The routing key is ignored by fanout.
func (c *Channel) Bind(q broker.Queue, ex broker.Exchange) error {
	if err := c.ch.QueueBind(q.Name, "", ex.Name, false, nil); err != nil {
		return translate("bind queue", err)
	}
	return nil
}

// Consumer prepares a consumer on q.
func (c *Channel) Consumer(q broker.Queue, tag string) broker.Consumer {
	return &consumer{
		channel: c,
		queue:   q.Name,
		tag:     tag,
		logger:  c.logger.With(zap.String("consumer", tag), zap.String("queue", q.Name)),
	}
}

// Publish sends payload to the fanout exchange.
func (c *Channel) Publish(ctx context.Context, exchange string, payload []byte) error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	err := c.ch.PublishWithContext(ctx, exchange, "", false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Timestamp:   time.Now(),
		Body:        payload,
	})
	if err != nil {
		return translate("publish", err)
	}
	return nil
}

// Ack acknowledges a single delivery.
func (c *Channel) Ack(tag uint64) error {
	return translate("ack", c.ch.Ack(tag, false))
}

// Nack rejects a single delivery.
func (c *Channel) Nack(tag uint64, requeue bool) error {
	return translate("nack", c.ch.Nack(tag, false, requeue))
}

// Close closes the channel. The broker requeues anything left unacknowledged.
func (c *Channel) Close() error {
	if err := c.ch.Close(); err != nil && !stderrors.Is(err, amqp.ErrClosed) {
		return translate("close channel", err)
	}
	return nil
}
