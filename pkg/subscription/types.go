package subscription

import (
	stderrors "errors"
	"time"
)

// MessageHandler processes one message payload. It is called synchronously on
// the consumer goroutine; the message is acknowledged only after it returns
// nil. A non-nil error leaves the message in the queue for redelivery.
type MessageHandler func(payload []byte) error

// State is the lifecycle position of a Subscription.
type State int32

const (
	// StateIdle is a subscription that has not subscribed yet.
	StateIdle State = iota
	// StateSubscribed has a live consumer on its queue.
	StateSubscribed
	// StateUnsubscribed is terminal.
	StateUnsubscribed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

const (
	// DefaultTTL is how long a queue outlives its last consumer.
	DefaultTTL = 15000 * time.Millisecond

	// prefetch of one keeps delivery strictly serial per subscription
	prefetch = 1
)

var (
	// ErrAlreadySubscribed is returned by Subscribe on a subscribed instance.
	ErrAlreadySubscribed = stderrors.New("subscription: already subscribed")
	// ErrSubscriptionClosed is returned by Subscribe after Unsubscribe or
	// Close, and handed back to the broker for deliveries that arrive after
	// cancellation.
	ErrSubscriptionClosed = stderrors.New("subscription: closed")
	// ErrManagerClosed is returned by Manager.New after Manager.Close.
	ErrManagerClosed = stderrors.New("subscription: manager closed")
)
