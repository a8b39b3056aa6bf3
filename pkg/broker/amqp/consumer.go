package amqp

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
	"github.com/DeBrosOfficial/firehose/pkg/errors"
)

type consumer struct {
	channel *Channel
	queue   string
	tag     string
	logger  *zap.Logger

	mu       sync.Mutex
	handler  broker.DeliveryHandler
	started  bool
	canceled bool
}

func (c *consumer) Tag() string { return c.tag }

func (c *consumer) OnDelivery(h broker.DeliveryHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Consume starts a manual-ack consumer and a goroutine that feeds its
// deliveries to the handler one at a time.
func (c *consumer) Consume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler == nil {
		return broker.ErrNoHandler
	}
	if c.canceled {
		return errors.NewPreconditionError("consumer", "consumer '"+c.tag+"' was canceled")
	}
	if c.started {
		return nil
	}

	deliveries, err := c.channel.ch.Consume(
		c.queue,
		c.tag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return translate("consume", err)
	}
	c.started = true

	go c.run(deliveries, c.handler)
	return nil
}

// Cancel asks the broker to stop delivering. The delivery channel is closed
// by the client library once the broker confirms.
func (c *consumer) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.canceled {
		return nil
	}
	c.canceled = true
	if !c.started {
		return nil
	}
	if err := c.channel.ch.Cancel(c.tag, false); err != nil {
		// a closed channel has no consumers left to cancel
		if errors.Is(translate("cancel", err), broker.ErrChannelClosed) {
			return nil
		}
		return translate("cancel", err)
	}
	return nil
}

func (c *consumer) run(deliveries <-chan amqp.Delivery, handler broker.DeliveryHandler) {
	for d := range deliveries {
		err := handler(broker.Delivery{
			Acknowledger: c.channel,
			ConsumerTag:  d.ConsumerTag,
			DeliveryTag:  d.DeliveryTag,
			Exchange:     d.Exchange,
			Redelivered:  d.Redelivered,
			Body:         d.Body,
		})
		if err == nil {
			continue
		}

		c.logger.Debug("Delivery handler failed, requeueing",
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Error(err))
		if nerr := d.Nack(false, true); nerr != nil {
			c.logger.Warn("Failed to nack delivery", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(nerr))
		}
	}
	c.logger.Debug("Consumer delivery loop finished")
}
