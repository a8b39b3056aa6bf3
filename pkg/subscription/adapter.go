package subscription

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
	"github.com/DeBrosOfficial/firehose/pkg/errors"
)

// deliveryAdapter sits between the broker consumer and the application
// handler. A message is acknowledged only after the handler has returned nil.
type deliveryAdapter struct {
	subscriberID string
	topic        string
	onMessage    MessageHandler
	logger       *zap.Logger

	canceled atomic.Bool
	// held for the whole of each delivery so teardown can wait for it
	inflight sync.Mutex
}

func newDeliveryAdapter(subscriberID, topic string, onMessage MessageHandler, logger *zap.Logger) *deliveryAdapter {
	return &deliveryAdapter{
		subscriberID: subscriberID,
		topic:        topic,
		onMessage:    onMessage,
		logger:       logger,
	}
}

// handle is the broker.DeliveryHandler for the subscription's consumer.
func (a *deliveryAdapter) handle(d broker.Delivery) error {
	a.inflight.Lock()
	defer a.inflight.Unlock()

	if a.canceled.Load() {
		return ErrSubscriptionClosed
	}

	if err := a.onMessage(d.Body); err != nil {
		return errors.NewCallbackError(a.subscriberID, a.topic, err)
	}

	if err := d.Ack(); err != nil {
		a.logger.Warn("Failed to acknowledge delivery",
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Error(err))
		return errors.Wrap(err, "acknowledge delivery")
	}
	return nil
}

// cancel refuses every delivery that has not started yet.
func (a *deliveryAdapter) cancel() {
	a.canceled.Store(true)
}

// drain blocks until a delivery in progress, if any, has finished.
func (a *deliveryAdapter) drain() {
	a.inflight.Lock()
	a.inflight.Unlock() //nolint:staticcheck // waits for handle to return
}
