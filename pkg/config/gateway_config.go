package config

import "time"

// GatewayConfig contains the HTTP and WebSocket edge configuration
type GatewayConfig struct {
	ListenAddr      string        `yaml:"listen_addr" env:"LISTEN_ADDR"`             // Address to listen on (e.g., ":8080")
	LongPollTimeout time.Duration `yaml:"long_poll_timeout" env:"LONG_POLL_TIMEOUT"` // How long a poll waits before answering 204
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`         // Deadline for writing one message to a client
	PingInterval    time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`         // WebSocket keepalive; 0 disables pings
	ReadLimit       int64         `yaml:"read_limit" env:"READ_LIMIT"`               // Largest inbound WebSocket frame in bytes
	MaxPublishBytes int64         `yaml:"max_publish_bytes" env:"MAX_PUBLISH_BYTES"` // Largest accepted publish body

	PublishRatePerMinute int `yaml:"publish_rate_per_minute" env:"PUBLISH_RATE_PER_MINUTE"` // Sustained publishes per client IP; 0 disables the limit
	PublishBurst         int `yaml:"publish_burst" env:"PUBLISH_BURST"`                     // Publishes a client may make back to back
}
