package broker

import "errors"

var (
	// ErrConnectionClosed is returned when the connection has been closed.
	ErrConnectionClosed = errors.New("broker: connection closed")
	// ErrChannelClosed is returned when the channel has been closed.
	ErrChannelClosed = errors.New("broker: channel closed")
	// ErrNoHandler is returned by Consume when OnDelivery was never called.
	ErrNoHandler = errors.New("broker: no delivery handler registered")
	// ErrDeliveryNotInitialized is returned when settling a delivery that has
	// no acknowledger.
	ErrDeliveryNotInitialized = errors.New("broker: delivery not initialized")
	// ErrUnknownDeliveryTag is returned when settling a delivery twice or on
	// the wrong channel.
	ErrUnknownDeliveryTag = errors.New("broker: unknown delivery tag")
)
