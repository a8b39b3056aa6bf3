// Package memory is an in-process broker.Connection. It reproduces the parts
// of AMQP semantics subscriptions rely on: fanout broadcast points that
// auto-delete after their last binding goes, queues that expire after being
// idle with no consumer, per-consumer prefetch and manual acknowledgment with
// requeue. Nothing is persisted.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
	"github.com/DeBrosOfficial/firehose/pkg/errors"
)

// Broker is an in-memory broker and the single connection to it.
type Broker struct {
	mu        sync.Mutex
	exchanges map[string]*exchange
	queues    map[string]*queue
	channels  map[*Channel]struct{}
	closed    bool
	logger    *zap.Logger
}

type exchange struct {
	name       string
	autoDelete bool
	queues     map[string]*queue
}

type message struct {
	exchange    string
	body        []byte
	redelivered bool
}

type queue struct {
	name      string
	expires   time.Duration
	messages  []message
	consumers map[*consumer]struct{}
	bindings  map[string]*exchange
	timer     *time.Timer
	timerGen  uint64
	deleted   bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the logger used for broker events.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates an empty broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		exchanges: make(map[string]*exchange),
		queues:    make(map[string]*queue),
		channels:  make(map[*Channel]struct{}),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Channel opens a new channel with the given prefetch limit. A prefetch of
// zero means unlimited.
func (b *Broker) Channel(prefetch int) (broker.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, broker.ErrConnectionClosed
	}

	ch := &Channel{
		broker:    b,
		prefetch:  prefetch,
		unacked:   make(map[uint64]*pending),
		consumers: make(map[string]*consumer),
	}
	b.channels[ch] = struct{}{}
	return ch, nil
}

// Close closes every channel. Queues and exchanges are kept so that a test
// can inspect them afterwards; expiry timers keep running.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.channels {
		ch.closeLocked()
	}
	return nil
}

// Publish routes payload through the named broadcast point without a
// channel. It returns the number of queues the message reached.
func (b *Broker) Publish(ctx context.Context, exchangeName string, payload []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, broker.ErrConnectionClosed
	}
	return b.publishLocked(exchangeName, payload)
}

// QueueInfo reports the current state of a queue.
func (b *Broker) QueueInfo(name string) (broker.Queue, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return broker.Queue{}, false
	}
	return broker.Queue{Name: q.name, Messages: len(q.messages), Consumers: len(q.consumers)}, true
}

// QueueExpiry returns the idle expiry a queue was declared with.
func (b *Broker) QueueExpiry(name string) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return 0, false
	}
	return q.expires, true
}

// HasExchange reports whether a broadcast point currently exists.
func (b *Broker) HasExchange(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.exchanges[name]
	return ok
}

// Queues returns the names of all live queues, sorted.
func (b *Broker) Queues() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *Broker) publishLocked(exchangeName string, payload []byte) (int, error) {
	ex, ok := b.exchanges[exchangeName]
	if !ok {
		return 0, errors.NewNotFoundError("exchange", exchangeName)
	}

	body := append([]byte(nil), payload...)
	for _, q := range ex.queues {
		q.messages = append(q.messages, message{exchange: ex.name, body: body})
		q.notifyConsumers()
	}
	return len(ex.queues), nil
}

func (b *Broker) declareExchangeLocked(name string, opts broker.BroadcastOptions) (*exchange, error) {
	if name == "" {
		return nil, errors.NewValidationError("exchange", "name must not be empty", name)
	}

	if ex, ok := b.exchanges[name]; ok {
		if ex.autoDelete != opts.AutoDelete {
			return nil, errors.NewPreconditionError("exchange",
				"inequivalent arg 'auto_delete' for exchange '"+name+"'")
		}
		return ex, nil
	}

	ex := &exchange{
		name:       name,
		autoDelete: opts.AutoDelete,
		queues:     make(map[string]*queue),
	}
	b.exchanges[name] = ex
	return ex, nil
}

func (b *Broker) declareQueueLocked(name string, opts broker.QueueOptions) (*queue, error) {
	if name == "" {
		return nil, errors.NewValidationError("queue", "name must not be empty", name)
	}

	if q, ok := b.queues[name]; ok {
		if q.expires != opts.Expires {
			return nil, errors.NewPreconditionError("queue",
				"inequivalent arg 'x-expires' for queue '"+name+"'")
		}
		// a redeclare counts as use and restarts the idle clock
		b.armExpiryLocked(q)
		return q, nil
	}

	q := &queue{
		name:      name,
		expires:   opts.Expires,
		consumers: make(map[*consumer]struct{}),
		bindings:  make(map[string]*exchange),
	}
	b.queues[name] = q
	b.armExpiryLocked(q)
	return q, nil
}

func (b *Broker) armExpiryLocked(q *queue) {
	if q.expires <= 0 || len(q.consumers) > 0 || q.deleted {
		return
	}
	b.disarmExpiryLocked(q)
	gen := q.timerGen
	q.timer = time.AfterFunc(q.expires, func() { b.expire(q, gen) })
}

func (b *Broker) disarmExpiryLocked(q *queue) {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.timerGen++
}

func (b *Broker) expire(q *queue, gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q.deleted || q.timerGen != gen || len(q.consumers) > 0 {
		return
	}
	b.logger.Debug("Queue expired",
		zap.String("queue", q.name),
		zap.Int("dropped_messages", len(q.messages)))
	b.deleteQueueLocked(q)
}

func (b *Broker) deleteQueueLocked(q *queue) {
	q.deleted = true
	q.messages = nil
	b.disarmExpiryLocked(q)
	delete(b.queues, q.name)

	for _, ex := range q.bindings {
		delete(ex.queues, q.name)
		if ex.autoDelete && len(ex.queues) == 0 {
			delete(b.exchanges, ex.name)
			b.logger.Debug("Exchange auto-deleted", zap.String("exchange", ex.name))
		}
	}
	q.bindings = nil
}

func (q *queue) notifyConsumers() {
	for c := range q.consumers {
		c.notify()
	}
}

// requeue puts a message back at the head of the queue.
func (q *queue) requeue(msg message) {
	if q.deleted {
		return
	}
	msg.redelivered = true
	q.messages = append([]message{msg}, q.messages...)
	q.notifyConsumers()
}
