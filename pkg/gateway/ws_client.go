package gateway

import (
	stderrors "errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/logging"
)

// control frame payloads are capped at 125 bytes, two of which hold the code
const maxCloseReason = 123

var errSocketBroken = stderrors.New("websocket: connection already failed")

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Topics are public; any origin may subscribe.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient wraps a WebSocket connection with message handling
type wsClient struct {
	conn         *websocket.Conn
	topic        string
	subscriberID string
	connID       string
	writeTimeout time.Duration
	logger       *logging.ColoredLogger

	// gorilla allows one concurrent writer of data frames
	writeMu sync.Mutex
	broken  atomic.Bool
}

// newWSClient creates a new WebSocket client wrapper
func newWSClient(conn *websocket.Conn, topic, subscriberID, connID string, writeTimeout time.Duration, logger *logging.ColoredLogger) *wsClient {
	return &wsClient{
		conn:         conn,
		topic:        topic,
		subscriberID: subscriberID,
		connID:       connID,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// writeMessage sends one message as a text frame. It is the subscription's
// message handler, so an error here leaves the message queued. The first
// failed write closes the socket, which ends the reader loop and with it
// the subscription; later deliveries fail without touching the socket.
func (c *wsClient) writeMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.broken.Load() {
		return errSocketBroken
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.broken.Store(true)
		c.logger.ComponentWarn(logging.ComponentGateway, "ws: failed to write to websocket",
			zap.String("topic", c.topic),
			zap.String("conn_id", c.connID),
			zap.String("subscriber_id", c.subscriberID),
			zap.Error(err))
		_ = c.conn.Close()
		return err
	}

	c.logger.ComponentDebug(logging.ComponentGateway, "ws: message sent",
		zap.String("topic", c.topic),
		zap.String("conn_id", c.connID),
		zap.Int("data_len", len(data)))
	return nil
}

// writeControl sends a WebSocket control message
func (c *wsClient) writeControl(messageType int, data []byte, deadline time.Time) error {
	return c.conn.WriteControl(messageType, data, deadline)
}

// closeWithReason sends a close frame before dropping the connection
func (c *wsClient) closeWithReason(code int, reason string) {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.writeControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// readMessage reads a message from the WebSocket client
func (c *wsClient) readMessage() (messageType int, data []byte, err error) {
	return c.conn.ReadMessage()
}

// close closes the WebSocket connection
func (c *wsClient) close() error {
	return c.conn.Close()
}
