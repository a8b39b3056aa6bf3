package subscription

import (
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
	"github.com/DeBrosOfficial/firehose/pkg/errors"
)

// Subscription is one client's view of one topic: a dedicated broker
// channel, a queue named after the subscriber and topic, and a consumer on
// that queue. Instances are created by Manager.New and are not meant to be
// shared between connections.
type Subscription struct {
	id      string
	conn    broker.Connection
	manager *Manager
	logger  *zap.Logger

	mu       sync.Mutex
	ttl      time.Duration
	state    State
	closed   bool
	topic    string
	queue    string
	channel  broker.Channel
	consumer broker.Consumer
	adapter  *deliveryAdapter
}

// SubscriberID returns the id that names this subscription's queues.
func (s *Subscription) SubscriberID() string {
	return s.id
}

// TTL returns how long the queue survives without a consumer.
func (s *Subscription) TTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttl
}

// SetTTL changes the queue expiry used by the next Subscribe. Once the queue
// has been declared the value is fixed and SetTTL is ignored. A TTL of zero
// or less would leave the queue behind forever and is ignored too.
func (s *Subscription) SetTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		s.logger.Debug("Ignoring non-positive TTL",
			zap.String("subscriber_id", s.id),
			zap.Duration("ttl", ttl))
		return
	}
	if s.state != StateIdle {
		s.logger.Debug("Ignoring TTL change after subscribe",
			zap.String("subscriber_id", s.id),
			zap.Duration("ttl", ttl),
			zap.String("state", s.state.String()))
		return
	}
	s.ttl = ttl
}

// State reports where the subscription is in its lifecycle.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Topic returns the subscribed topic, or "" before Subscribe succeeds.
func (s *Subscription) Topic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topic
}

// Subscribe attaches a consumer for topic and starts delivering to
// onMessage. Setup either completes or leaves nothing behind: on failure the
// channel it opened is closed and the subscription stays idle.
func (s *Subscription) Subscribe(topic string, onMessage MessageHandler) error {
	if topic == "" {
		return errors.NewValidationError("topic", "topic must not be empty", topic)
	}
	if onMessage == nil {
		return errors.NewValidationError("onMessage", "message handler is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed || s.state == StateUnsubscribed:
		return ErrSubscriptionClosed
	case s.state == StateSubscribed:
		return ErrAlreadySubscribed
	}

	ch, err := s.conn.Channel(prefetch)
	if err != nil {
		if errors.IsConnection(err) {
			return err
		}
		return errors.NewConnectionError("open channel", err)
	}

	queueName := QueueName(s.id, topic)
	logger := s.logger.With(
		zap.String("subscriber_id", s.id),
		zap.String("topic", topic),
		zap.String("queue", queueName))

	fail := func(op string, cause error) error {
		if cerr := ch.Close(); cerr != nil {
			logger.Debug("Failed to close channel after setup error", zap.Error(cerr))
		}
		logger.Warn("Subscribe failed", zap.String("operation", op), zap.Error(cause))
		return errors.Wrapf(cause, "subscribe %s: %s", queueName, op)
	}

	ex, err := ch.DeclareBroadcast(topic, broker.BroadcastOptions{AutoDelete: true})
	if err != nil {
		return fail("declare broadcast", err)
	}
	q, err := ch.DeclareQueue(queueName, broker.QueueOptions{Expires: s.ttl})
	if err != nil {
		return fail("declare queue", err)
	}
	if err := ch.Bind(q, ex); err != nil {
		return fail("bind queue", err)
	}

	adapter := newDeliveryAdapter(s.id, topic, onMessage, logger)
	consumer := ch.Consumer(q, s.id)
	consumer.OnDelivery(adapter.handle)
	if err := consumer.Consume(); err != nil {
		return fail("consume", err)
	}

	s.topic = topic
	s.queue = queueName
	s.channel = ch
	s.consumer = consumer
	s.adapter = adapter
	s.state = StateSubscribed

	logger.Debug("Subscribed",
		zap.Duration("ttl", s.ttl),
		zap.Int("backlog", q.Messages))
	return nil
}

// Unsubscribe cancels the consumer. The queue and its binding stay in place
// until the broker expires the queue TTL later, so a client that comes back
// with the same subscriber id in time receives what it missed. Calling it
// before Subscribe or more than once does nothing.
func (s *Subscription) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribeLocked()
}

func (s *Subscription) unsubscribeLocked() error {
	if s.state != StateSubscribed {
		return nil
	}
	s.state = StateUnsubscribed
	s.adapter.cancel()

	if err := s.consumer.Cancel(); err != nil {
		s.logger.Warn("Failed to cancel consumer",
			zap.String("subscriber_id", s.id),
			zap.String("queue", s.queue),
			zap.Error(err))
		return errors.Wrapf(err, "unsubscribe %s", s.queue)
	}

	s.logger.Debug("Unsubscribed",
		zap.String("subscriber_id", s.id),
		zap.String("queue", s.queue))
	return nil
}

// Close unsubscribes, waits for a delivery in progress to finish and then
// releases the broker channel. It is safe to call more than once and from
// any goroutine except the message handler itself.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	err := s.unsubscribeLocked()
	if s.state == StateIdle {
		s.state = StateUnsubscribed
	}
	ch, adapter, queue := s.channel, s.adapter, s.queue
	s.mu.Unlock()

	if adapter != nil {
		adapter.drain()
	}
	if ch != nil {
		if cerr := ch.Close(); cerr != nil {
			err = multierr.Append(err, errors.Wrapf(cerr, "close channel for %s", queue))
		}
	}

	if s.manager != nil {
		s.manager.forget(s)
	}
	return err
}
