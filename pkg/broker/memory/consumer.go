package memory

import (
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
	"github.com/DeBrosOfficial/firehose/pkg/errors"
)

type consumer struct {
	channel   *Channel
	queueName string
	queue     *queue
	tag       string
	handler   broker.DeliveryHandler

	// guarded by broker.mu
	started  bool
	canceled bool
	inflight int

	wake chan struct{}
	done chan struct{}
}

func (c *consumer) Tag() string { return c.tag }

func (c *consumer) OnDelivery(h broker.DeliveryHandler) {
	c.handler = h
}

func (c *consumer) Consume() error {
	if c.handler == nil {
		return broker.ErrNoHandler
	}

	b := c.channel.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if c.channel.closed {
		return broker.ErrChannelClosed
	}
	if c.canceled {
		return errors.NewPreconditionError("consumer", "consumer '"+c.tag+"' was canceled")
	}
	if c.started {
		return nil
	}
	if _, taken := c.channel.consumers[c.tag]; taken {
		return errors.NewPreconditionError("consumer", "attempt to reuse consumer tag '"+c.tag+"'")
	}
	q, ok := b.queues[c.queueName]
	if !ok {
		return errors.NewNotFoundError("queue", c.queueName)
	}

	c.queue = q
	c.started = true
	c.channel.consumers[c.tag] = c
	q.consumers[c] = struct{}{}
	b.disarmExpiryLocked(q)

	go c.run()
	c.notify()
	return nil
}

func (c *consumer) Cancel() error {
	b := c.channel.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	c.cancelLocked()
	return nil
}

func (c *consumer) cancelLocked() {
	if c.canceled {
		return
	}
	c.canceled = true
	close(c.done)

	if !c.started {
		return
	}
	delete(c.channel.consumers, c.tag)
	delete(c.queue.consumers, c)
	c.channel.broker.armExpiryLocked(c.queue)
}

func (c *consumer) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *consumer) run() {
	logger := c.channel.broker.logger.With(zap.String("consumer", c.tag), zap.String("queue", c.queueName))
	for {
		d, ok := c.next()
		if !ok {
			select {
			case <-c.wake:
				continue
			case <-c.done:
				return
			}
		}

		if err := c.handler(d); err != nil {
			logger.Debug("Delivery handler failed, requeueing", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
			if nerr := d.Nack(true); nerr != nil {
				logger.Debug("Nack after handler failure did not apply", zap.Error(nerr))
			}
		}
	}
}

// next pops the head of the queue if the consumer is live and under its
// prefetch limit.
func (c *consumer) next() (broker.Delivery, bool) {
	b := c.channel.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	q := c.queue
	if c.canceled || q.deleted || len(q.messages) == 0 {
		return broker.Delivery{}, false
	}
	if c.channel.prefetch > 0 && c.inflight >= c.channel.prefetch {
		return broker.Delivery{}, false
	}

	msg := q.messages[0]
	q.messages = q.messages[1:]

	c.channel.nextTag++
	tag := c.channel.nextTag
	c.channel.unacked[tag] = &pending{queue: q, msg: msg, consumer: c}
	c.inflight++

	return broker.Delivery{
		Acknowledger: c.channel,
		ConsumerTag:  c.tag,
		DeliveryTag:  tag,
		Exchange:     msg.exchange,
		Redelivered:  msg.redelivered,
		Body:         msg.body,
	}, true
}
