package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/broker"
	"github.com/DeBrosOfficial/firehose/pkg/broker/amqp"
	"github.com/DeBrosOfficial/firehose/pkg/broker/memory"
	"github.com/DeBrosOfficial/firehose/pkg/config"
	"github.com/DeBrosOfficial/firehose/pkg/gateway"
	"github.com/DeBrosOfficial/firehose/pkg/logging"
	"github.com/DeBrosOfficial/firehose/pkg/subscription"
)

func setupLogger(cfg config.LoggingConfig, colors bool) *logging.ColoredLogger {
	logger, err := logging.NewLogger(logging.Options{
		Level:        cfg.Level,
		Format:       cfg.Format,
		OutputFile:   cfg.OutputFile,
		EnableColors: colors,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// openBroker connects to the configured broker driver
func openBroker(cfg config.BrokerConfig, logger *logging.ColoredLogger) (broker.Connection, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.ComponentWarn(logging.ComponentBroker, "Using in-memory broker; queues do not survive a restart")
		return memory.New(memory.WithLogger(logger.For(logging.ComponentBroker))), nil
	default:
		return amqp.Dial(cfg.URL,
			amqp.WithLogger(logger.For(logging.ComponentBroker)),
			amqp.WithHeartbeat(cfg.Heartbeat),
			amqp.WithConnectionName(cfg.ConnectionName),
		)
	}
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, path, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging, !f.noColor)
	defer func() { _ = logger.Sync() }()

	logger.ComponentInfo(logging.ComponentGeneral, "Loaded gateway configuration",
		zap.String("path", path),
		zap.String("driver", cfg.Broker.Driver),
		zap.String("addr", cfg.Gateway.ListenAddr),
		zap.Duration("default_ttl", cfg.Broker.DefaultTTL),
	)

	conn, err := openBroker(cfg.Broker, logger)
	if err != nil {
		logger.ComponentError(logging.ComponentBroker, "failed to connect to broker", zap.Error(err))
		os.Exit(1)
	}

	manager := subscription.NewManager(conn,
		subscription.WithDefaultTTL(cfg.Broker.DefaultTTL),
		subscription.WithLogger(logger.For(logging.ComponentSubscription)),
	)

	g := gateway.New(gateway.ConfigFrom(cfg), manager, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- g.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		logger.ComponentInfo(logging.ComponentGeneral, "Shutting down gateway...")
	case err := <-serveErr:
		if err != nil {
			logger.ComponentError(logging.ComponentGeneral, "HTTP server error", zap.Error(err))
			exitCode = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.Shutdown(ctx); err != nil {
		logger.ComponentError(logging.ComponentGeneral, "HTTP server shutdown error", zap.Error(err))
	}
	if err := manager.Close(); err != nil {
		logger.ComponentWarn(logging.ComponentSubscription, "closing subscriptions failed", zap.Error(err))
	}
	if err := conn.Close(); err != nil {
		logger.ComponentWarn(logging.ComponentBroker, "closing broker connection failed", zap.Error(err))
	}
	logger.ComponentInfo(logging.ComponentGeneral, "Gateway shutdown complete")

	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}
