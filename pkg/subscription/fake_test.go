package subscription

import (
	"context"
	"fmt"
	"sync"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
)

// recordingConn is a broker.Connection that records every call in order and
// lets a test push deliveries by hand.
type recordingConn struct {
	mu     sync.Mutex
	events []string
	fail   map[string]error

	channels  []*recordingChannel
	consumers []*recordingConsumer
	queueOpts map[string]broker.QueueOptions
}

func newRecordingConn() *recordingConn {
	return &recordingConn{
		fail:      make(map[string]error),
		queueOpts: make(map[string]broker.QueueOptions),
	}
}

func (c *recordingConn) record(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, fmt.Sprintf(format, args...))
}

func (c *recordingConn) failure(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fail[op]
}

func (c *recordingConn) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func (c *recordingConn) lastConsumer() *recordingConsumer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.consumers) == 0 {
		return nil
	}
	return c.consumers[len(c.consumers)-1]
}

func (c *recordingConn) Channel(prefetch int) (broker.Channel, error) {
	if err := c.failure("channel"); err != nil {
		return nil, err
	}
	c.record("channel prefetch=%d", prefetch)

	ch := &recordingChannel{conn: c}
	c.mu.Lock()
	c.channels = append(c.channels, ch)
	c.mu.Unlock()
	return ch, nil
}

func (c *recordingConn) Close() error { return nil }

type recordingChannel struct {
	conn    *recordingConn
	mu      sync.Mutex
	closed  bool
	nextTag uint64
}

func (ch *recordingChannel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *recordingChannel) DeclareBroadcast(name string, opts broker.BroadcastOptions) (broker.Exchange, error) {
	if err := ch.conn.failure("declareBroadcast"); err != nil {
		return broker.Exchange{}, err
	}
	ch.conn.record("declareBroadcast %s autoDelete=%v", name, opts.AutoDelete)
	return broker.Exchange{Name: name}, nil
}

func (ch *recordingChannel) DeclareQueue(name string, opts broker.QueueOptions) (broker.Queue, error) {
	if err := ch.conn.failure("declareQueue"); err != nil {
		return broker.Queue{}, err
	}
	ch.conn.record("declareQueue %s expires=%s", name, opts.Expires)
	ch.conn.mu.Lock()
	ch.conn.queueOpts[name] = opts
	ch.conn.mu.Unlock()
	return broker.Queue{Name: name}, nil
}

func (ch *recordingChannel) Bind(q broker.Queue, ex broker.Exchange) error {
	if err := ch.conn.failure("bind"); err != nil {
		return err
	}
	ch.conn.record("bind %s -> %s", ex.Name, q.Name)
	return nil
}

func (ch *recordingChannel) Consumer(q broker.Queue, tag string) broker.Consumer {
	ch.conn.record("consumer %s tag=%s", q.Name, tag)
	c := &recordingConsumer{channel: ch, tag: tag}
	ch.conn.mu.Lock()
	ch.conn.consumers = append(ch.conn.consumers, c)
	ch.conn.mu.Unlock()
	return c
}

func (ch *recordingChannel) Publish(_ context.Context, exchange string, payload []byte) error {
	ch.conn.record("publish %s %s", exchange, payload)
	return nil
}

func (ch *recordingChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.closed {
		ch.closed = true
		ch.conn.record("close channel")
	}
	return nil
}

func (ch *recordingChannel) Ack(tag uint64) error {
	ch.conn.record("ack %d", tag)
	return nil
}

func (ch *recordingChannel) Nack(tag uint64, requeue bool) error {
	ch.conn.record("nack %d requeue=%v", tag, requeue)
	return nil
}

type recordingConsumer struct {
	channel *recordingChannel
	tag     string

	mu      sync.Mutex
	handler broker.DeliveryHandler
	active  bool
}

func (c *recordingConsumer) Tag() string { return c.tag }

func (c *recordingConsumer) OnDelivery(h broker.DeliveryHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *recordingConsumer) Consume() error {
	if err := c.channel.conn.failure("consume"); err != nil {
		return err
	}
	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
	c.channel.conn.record("consume tag=%s", c.tag)
	return nil
}

func (c *recordingConsumer) Cancel() error {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
	c.channel.conn.record("cancel tag=%s", c.tag)
	return nil
}

// deliver hands payload to the registered handler the way a gateway would,
// ignoring whether the consumer is still active so tests can simulate a
// delivery racing with cancellation.
func (c *recordingConsumer) deliver(payload string) error {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	c.channel.mu.Lock()
	c.channel.nextTag++
	tag := c.channel.nextTag
	c.channel.mu.Unlock()

	return h(broker.Delivery{
		Acknowledger: c.channel,
		ConsumerTag:  c.tag,
		DeliveryTag:  tag,
		Body:         []byte(payload),
	})
}
