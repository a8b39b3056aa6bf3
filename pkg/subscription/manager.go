// Package subscription maintains broker-side subscriptions for edge clients.
//
// Each Subscription owns one broker channel and one consumer on a queue
// named "<subscriber id>@<topic>" that is bound to the topic's fanout
// broadcast point. Messages are acknowledged only after the application
// handler has processed them, and a canceled queue lingers for its TTL so a
// client that reconnects with the same subscriber id picks up where it left
// off.
package subscription

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
)

// Manager creates subscriptions against one broker connection and keeps
// track of the ones still open.
type Manager struct {
	conn       broker.Connection
	defaultTTL time.Duration
	newID      func() string
	logger     *zap.Logger

	mu     sync.RWMutex
	live   map[*Subscription]struct{}
	closed bool

	pubMu     sync.Mutex
	publisher broker.Channel
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultTTL sets the TTL new subscriptions start with.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.defaultTTL = ttl
		}
	}
}

// WithIDGenerator replaces NewSubscriberID for subscriptions created without
// an explicit id.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithLogger sets the logger for subscription events.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager on top of conn. The manager never closes conn.
func NewManager(conn broker.Connection, opts ...Option) *Manager {
	m := &Manager{
		conn:       conn,
		defaultTTL: DefaultTTL,
		newID:      NewSubscriberID,
		logger:     zap.NewNop(),
		live:       make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultTTL returns the TTL new subscriptions start with.
func (m *Manager) DefaultTTL() time.Duration {
	return m.defaultTTL
}

// New returns an idle subscription for subscriberID, generating an id when
// it is empty. Passing the id of an earlier connection resumes its queues.
func (m *Manager) New(subscriberID string) (*Subscription, error) {
	if subscriberID == "" {
		subscriberID = m.newID()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	s := &Subscription{
		id:      subscriberID,
		conn:    m.conn,
		manager: m,
		logger:  m.logger,
		ttl:     m.defaultTTL,
		state:   StateIdle,
	}
	m.live[s] = struct{}{}
	return s, nil
}

// Count returns the number of subscriptions that have not been closed.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// Topics returns the distinct topics with at least one active subscription,
// sorted.
func (m *Manager) Topics() []string {
	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.live))
	for s := range m.live {
		subs = append(subs, s)
	}
	m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, s := range subs {
		if s.State() != StateSubscribed {
			continue
		}
		seen[s.Topic()] = struct{}{}
	}

	topics := make([]string, 0, len(seen))
	for t := range seen {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func (m *Manager) forget(s *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, s)
}

// Close closes every open subscription and the publishing channel. Further
// calls to New fail with ErrManagerClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := make([]*Subscription, 0, len(m.live))
	for s := range m.live {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	var err error
	for _, s := range subs {
		err = multierr.Append(err, s.Close())
	}
	err = multierr.Append(err, m.closePublisher())

	m.logger.Info("Subscription manager closed", zap.Int("subscriptions", len(subs)))
	return err
}
