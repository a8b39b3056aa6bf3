// Package gateway is the HTTP edge of firehose. Clients publish with PUT or
// POST to a topic path, receive messages one at a time by long polling GET
// on the same path, or stream them over a WebSocket.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/config"
	"github.com/DeBrosOfficial/firehose/pkg/logging"
	"github.com/DeBrosOfficial/firehose/pkg/subscription"
)

// Config holds the settings the HTTP handlers need
type Config struct {
	ListenAddr      string
	LongPollTimeout time.Duration
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	ReadLimit       int64
	MaxPublishBytes int64
	PublishTimeout  time.Duration

	// Publish rate per client IP; zero disables limiting
	PublishRatePerMinute int
	PublishBurst         int
}

// ConfigFrom builds the gateway settings from the loaded configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		ListenAddr:      cfg.Gateway.ListenAddr,
		LongPollTimeout: cfg.Gateway.LongPollTimeout,
		WriteTimeout:    cfg.Gateway.WriteTimeout,
		PingInterval:    cfg.Gateway.PingInterval,
		ReadLimit:       cfg.Gateway.ReadLimit,
		MaxPublishBytes: cfg.Gateway.MaxPublishBytes,
		PublishTimeout:  cfg.Broker.PublishTimeout,

		PublishRatePerMinute: cfg.Gateway.PublishRatePerMinute,
		PublishBurst:         cfg.Gateway.PublishBurst,
	}
}

func (c Config) withDefaults() Config {
	def := config.DefaultConfig()
	if c.LongPollTimeout <= 0 {
		c.LongPollTimeout = def.Gateway.LongPollTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.Gateway.WriteTimeout
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = def.Gateway.ReadLimit
	}
	if c.MaxPublishBytes <= 0 {
		c.MaxPublishBytes = def.Gateway.MaxPublishBytes
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = def.Broker.PublishTimeout
	}
	return c
}

// Gateway serves the publish, long-poll and WebSocket endpoints
type Gateway struct {
	cfg       Config
	manager   *subscription.Manager
	logger    *logging.ColoredLogger
	startedAt time.Time
	limiter   *publishLimiter

	handler http.Handler

	mu     sync.Mutex
	server *http.Server
}

// New creates a gateway on top of a subscription manager. The manager is
// shared; the gateway never closes it.
func New(cfg Config, manager *subscription.Manager, logger *logging.ColoredLogger) *Gateway {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	g := &Gateway{
		cfg:       cfg.withDefaults(),
		manager:   manager,
		logger:    logger,
		startedAt: time.Now(),
	}
	g.limiter = newPublishLimiter(g.cfg.PublishRatePerMinute, g.cfg.PublishBurst)
	g.handler = g.Routes()
	return g
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Serve accepts connections on l until Shutdown is called.
func (g *Gateway) Serve(l net.Listener) error {
	g.mu.Lock()
	g.server = &http.Server{
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := g.server
	g.mu.Unlock()

	g.logger.ComponentInfo(logging.ComponentGateway, "Gateway listening",
		zap.String("addr", l.Addr().String()),
		zap.Duration("long_poll_timeout", g.cfg.LongPollTimeout))

	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until Shutdown.
func (g *Gateway) ListenAndServe() error {
	l, err := net.Listen("tcp", g.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return g.Serve(l)
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Hijacked WebSocket connections are not waited for; closing the manager
// tears their subscriptions down.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	srv := g.server
	g.mu.Unlock()

	if srv == nil {
		return nil
	}
	g.logger.ComponentInfo(logging.ComponentGateway, "Shutting down gateway")
	return srv.Shutdown(ctx)
}
