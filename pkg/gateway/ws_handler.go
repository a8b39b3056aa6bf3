package gateway

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/errors"
	"github.com/DeBrosOfficial/firehose/pkg/logging"
)

// websocketHandler upgrades GET /<topic> and streams every message on the
// subscriber's queue as a text frame. An optional cid query parameter
// resumes an earlier subscriber's queue. Frames sent by the client are
// ignored.
func (g *Gateway) websocketHandler(w http.ResponseWriter, r *http.Request) {
	topic := topicFromRequest(r)
	if topic == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing topic path"})
		return
	}

	sub, err := g.manager.New(r.URL.Query().Get("cid"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "ws: upgrade failed", zap.Error(err))
		_ = sub.Close()
		return
	}
	conn.SetReadLimit(g.cfg.ReadLimit)

	connID := uuid.New().String()
	client := newWSClient(conn, topic, sub.SubscriberID(), connID, g.cfg.WriteTimeout, g.logger)

	if err := sub.Subscribe(topic, client.writeMessage); err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "ws: subscribe failed",
			zap.String("topic", topic),
			zap.String("conn_id", connID),
			zap.String("code", errors.GetErrorCode(err)),
			zap.Error(err))
		client.closeWithReason(subscribeCloseCode(err), errors.GetErrorMessage(err))
		_ = sub.Close()
		return
	}

	g.logger.ComponentInfo(logging.ComponentGateway, "ws: client subscribed",
		zap.String("topic", topic),
		zap.String("conn_id", connID),
		zap.String("subscriber_id", sub.SubscriberID()))

	done := make(chan struct{})
	if g.cfg.PingInterval > 0 {
		pongWait := 2 * g.cfg.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go g.pingLoop(client, done)
	}

	g.readerLoop(client)
	close(done)

	// close the socket first so an in-flight write fails and its message is
	// requeued
	_ = client.close()
	if err := sub.Close(); err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "ws: closing subscription failed",
			zap.String("conn_id", connID),
			zap.Error(err))
	}

	g.logger.ComponentInfo(logging.ComponentGateway, "ws: client disconnected",
		zap.String("topic", topic),
		zap.String("conn_id", connID))
}

// pingLoop keeps the connection alive until done is closed
func (g *Gateway) pingLoop(client *wsClient, done chan struct{}) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := client.writeControl(websocket.PingMessage, []byte("ping"), time.Now().Add(g.cfg.WriteTimeout)); err != nil {
				g.logger.ComponentDebug(logging.ComponentGateway, "ws: ping failed",
					zap.String("conn_id", client.connID),
					zap.Error(err))
				_ = client.close()
				return
			}
		case <-done:
			return
		}
	}
}

// readerLoop drains client frames until the connection fails or closes
func (g *Gateway) readerLoop(client *wsClient) {
	for {
		mt, data, err := client.readMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				g.logger.ComponentDebug(logging.ComponentGateway, "ws: read error",
					zap.String("conn_id", client.connID),
					zap.Error(err))
			}
			return
		}
		g.logger.ComponentDebug(logging.ComponentGateway, "ws: ignoring client frame",
			zap.String("conn_id", client.connID),
			zap.Int("type", mt),
			zap.Int("len", len(data)))
	}
}

// subscribeCloseCode tells the client whether reconnecting can help.
func subscribeCloseCode(err error) int {
	if errors.ShouldRetry(err) {
		return websocket.CloseTryAgainLater
	}
	return websocket.CloseInternalServerErr
}
