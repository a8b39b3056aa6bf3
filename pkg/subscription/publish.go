package subscription

import (
	"context"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
	"github.com/DeBrosOfficial/firehose/pkg/errors"
)

// Publish sends data to every queue bound to topic. The broadcast point is
// declared first, exactly as subscribers declare it, so publishing to a topic
// nobody has subscribed to yet is not an error; the message is dropped.
func (m *Manager) Publish(ctx context.Context, topic string, data []byte) error {
	if topic == "" {
		return errors.NewValidationError("topic", "topic must not be empty", topic)
	}

	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	ch, err := m.publisherLocked()
	if err != nil {
		return err
	}

	if _, err := ch.DeclareBroadcast(topic, broker.BroadcastOptions{AutoDelete: true}); err != nil {
		m.resetPublisherLocked()
		return errors.Wrapf(err, "publish to %s: declare broadcast", topic)
	}
	if err := ch.Publish(ctx, topic, data); err != nil {
		m.resetPublisherLocked()
		return errors.Wrapf(err, "publish to %s", topic)
	}

	m.logger.Debug("Published message", zap.String("topic", topic), zap.Int("bytes", len(data)))
	return nil
}

// publisherLocked returns the shared publishing channel, opening it on first
// use or after a failure closed it.
func (m *Manager) publisherLocked() (broker.Channel, error) {
	if m.publisher != nil {
		return m.publisher, nil
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}

	ch, err := m.conn.Channel(0)
	if err != nil {
		if errors.IsConnection(err) {
			return nil, err
		}
		return nil, errors.NewConnectionError("open publisher channel", err)
	}
	m.publisher = ch
	return ch, nil
}

// resetPublisherLocked drops the publishing channel. A broker that rejects
// an operation may have closed it already.
func (m *Manager) resetPublisherLocked() {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Close(); err != nil {
		m.logger.Debug("Publisher channel close failed", zap.Error(err))
	}
	m.publisher = nil
}

func (m *Manager) closePublisher() error {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	if m.publisher == nil {
		return nil
	}
	err := m.publisher.Close()
	m.publisher = nil
	return err
}
