// Package amqp implements broker.Connection on top of RabbitMQ using the
// AMQP 0-9-1 protocol.
package amqp

import (
	stderrors "errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
	"github.com/DeBrosOfficial/firehose/pkg/errors"
)

const (
	defaultHeartbeat      = 10 * time.Second
	defaultConnectionName = "firehose"
)

// Connection is a single AMQP connection shared by every subscription.
type Connection struct {
	conn   *amqp.Connection
	logger *zap.Logger
}

var _ broker.Connection = (*Connection)(nil)

type options struct {
	logger    *zap.Logger
	heartbeat time.Duration
	name      string
}

// Option configures Dial.
type Option func(*options)

// WithLogger sets the logger for connection and consumer events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHeartbeat sets the AMQP heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.heartbeat = d
		}
	}
}

// WithConnectionName sets the connection_name client property shown in the
// RabbitMQ management UI.
func WithConnectionName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// Dial connects to the broker at url (amqp:// or amqps://).
func Dial(url string, opts ...Option) (*Connection, error) {
	o := options{
		logger:    zap.NewNop(),
		heartbeat: defaultHeartbeat,
		name:      defaultConnectionName,
	}
	for _, opt := range opts {
		opt(&o)
	}

	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(o.name)

	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat:  o.heartbeat,
		Properties: props,
	})
	if err != nil {
		return nil, errors.NewConnectionError("dial", err)
	}

	c := &Connection{conn: conn, logger: o.logger}
	go c.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	o.logger.Info("Connected to AMQP broker", zap.String("connection_name", o.name))
	return c, nil
}

func (c *Connection) watch(closed <-chan *amqp.Error) {
	for e := range closed {
		c.logger.Warn("AMQP connection closed by broker",
			zap.Int("code", e.Code),
			zap.String("reason", e.Reason))
	}
}

// Channel opens an AMQP channel with Qos set to prefetch.
func (c *Connection) Channel(prefetch int) (broker.Channel, error) {
	if c.conn.IsClosed() {
		return nil, errors.NewConnectionError("open channel", broker.ErrConnectionClosed)
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, errors.NewConnectionError("open channel", err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, translate("qos", err)
		}
	}

	return &Channel{ch: ch, logger: c.logger}, nil
}

// Close closes the connection and every channel on it.
func (c *Connection) Close() error {
	if err := c.conn.Close(); err != nil && !stderrors.Is(err, amqp.ErrClosed) {
		return errors.NewServiceError("amqp", "close connection", err)
	}
	return nil
}

// translate maps AMQP channel exceptions onto the error types the rest of
// the module checks for.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, amqp.ErrClosed) {
		return errors.Wrap(broker.ErrChannelClosed, op)
	}

	var amqpErr *amqp.Error
	if stderrors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.PreconditionFailed:
			return errors.NewPreconditionError(op, amqpErr.Reason)
		case amqp.NotFound:
			return errors.NewNotFoundError(op, amqpErr.Reason)
		case amqp.ChannelError, amqp.ConnectionForced:
			return errors.NewConnectionError(op, err)
		}
	}
	return errors.NewServiceError("amqp", op, err)
}
