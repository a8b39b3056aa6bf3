package memory

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
	"github.com/DeBrosOfficial/firehose/pkg/errors"
)

// Channel is a session on the in-memory broker.
type Channel struct {
	broker    *Broker
	prefetch  int
	nextTag   uint64
	unacked   map[uint64]*pending
	consumers map[string]*consumer
	closed    bool
}

type pending struct {
	queue    *queue
	msg      message
	consumer *consumer
}

var _ broker.Channel = (*Channel)(nil)
var _ broker.Acknowledger = (*Channel)(nil)

// DeclareBroadcast declares a fanout broadcast point.
func (ch *Channel) DeclareBroadcast(name string, opts broker.BroadcastOptions) (broker.Exchange, error) {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	if ch.closed {
		return broker.Exchange{}, broker.ErrChannelClosed
	}
	ex, err := ch.broker.declareExchangeLocked(name, opts)
	if err != nil {
		return broker.Exchange{}, err
	}
	return broker.Exchange{Name: ex.name}, nil
}

// DeclareQueue declares a queue with an idle expiry.
func (ch *Channel) DeclareQueue(name string, opts broker.QueueOptions) (broker.Queue, error) {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	if ch.closed {
		return broker.Queue{}, broker.ErrChannelClosed
	}
	q, err := ch.broker.declareQueueLocked(name, opts)
	if err != nil {
		return broker.Queue{}, err
	}
	return broker.Queue{Name: q.name, Messages: len(q.messages), Consumers: len(q.consumers)}, nil
}

// Bind routes messages from the broadcast point into the queue.
func (ch *Channel) Bind(q broker.Queue, ex broker.Exchange) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	if ch.closed {
		return broker.ErrChannelClosed
	}
	mq, ok := ch.broker.queues[q.Name]
	if !ok {
		return errors.NewNotFoundError("queue", q.Name)
	}
	mex, ok := ch.broker.exchanges[ex.Name]
	if !ok {
		return errors.NewNotFoundError("exchange", ex.Name)
	}

	mex.queues[mq.name] = mq
	mq.bindings[mex.name] = mex
	return nil
}

// Consumer prepares a consumer; delivery starts with Consume.
func (ch *Channel) Consumer(q broker.Queue, tag string) broker.Consumer {
	return &consumer{
		channel:   ch,
		queueName: q.Name,
		tag:       tag,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Publish routes payload through the named broadcast point.
func (ch *Channel) Publish(ctx context.Context, exchangeName string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	if ch.closed {
		return broker.ErrChannelClosed
	}
	_, err := ch.broker.publishLocked(exchangeName, payload)
	return err
}

// Ack settles a delivery and removes its message for good.
func (ch *Channel) Ack(tag uint64) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	p, err := ch.settleLocked(tag)
	if err != nil {
		return err
	}
	p.consumer.notify()
	return nil
}

// Nack settles a delivery, optionally returning its message to the queue.
func (ch *Channel) Nack(tag uint64, requeue bool) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	p, err := ch.settleLocked(tag)
	if err != nil {
		return err
	}
	if requeue {
		p.queue.requeue(p.msg)
	}
	p.consumer.notify()
	return nil
}

func (ch *Channel) settleLocked(tag uint64) (*pending, error) {
	if ch.closed {
		return nil, broker.ErrChannelClosed
	}
	p, ok := ch.unacked[tag]
	if !ok {
		return nil, broker.ErrUnknownDeliveryTag
	}
	delete(ch.unacked, tag)
	p.consumer.inflight--
	return p, nil
}

// Close cancels the channel's consumers and requeues what they still held.
func (ch *Channel) Close() error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	ch.closeLocked()
	return nil
}

func (ch *Channel) closeLocked() {
	if ch.closed {
		return
	}
	ch.closed = true

	for _, c := range ch.consumers {
		c.cancelLocked()
	}

	// requeue newest first so the oldest ends up at the head again
	tags := make([]uint64, 0, len(ch.unacked))
	for tag := range ch.unacked {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] > tags[j] })
	for _, tag := range tags {
		p := ch.unacked[tag]
		p.queue.requeue(p.msg)
	}
	if len(tags) > 0 {
		ch.broker.logger.Debug("Requeued unacknowledged deliveries on channel close",
			zap.Int("count", len(tags)))
	}
	ch.unacked = make(map[uint64]*pending)

	delete(ch.broker.channels, ch)
}
