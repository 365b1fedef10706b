package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL                 = "https://api.classline.app/v1"
	DefaultWSURL                   = "wss://realtime.classline.app/v1/stream"
	DefaultAPITimeout              = 30 * time.Second
	DefaultMaxRetries              = 3
	DefaultDBPort                  = 5432
	DefaultDBSSLMode               = "prefer"
	DefaultMaxConns                = 10
	DefaultMinConns                = 2
	DefaultMaxReconnectAttempts    = 5
	DefaultReconnectDelay          = 1 * time.Second
	DefaultFallbackPollingInterval = 5 * time.Second
	DefaultHeartbeatInterval       = 10 * time.Second
	DefaultSubscribeTimeout        = 10 * time.Second
	DefaultEventBufferSize         = 256
	DefaultBatchSize               = 100
	DefaultFlushInterval           = 1 * time.Second
	DefaultBufferSize              = 1000
)

func (c *NotifierConfig) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Realtime defaults
	if c.Realtime.MaxReconnectAttempts == 0 {
		c.Realtime.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Realtime.ReconnectDelay == 0 {
		c.Realtime.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Realtime.FallbackPollingInterval == 0 {
		c.Realtime.FallbackPollingInterval = DefaultFallbackPollingInterval
	}
	if c.Realtime.HeartbeatInterval == 0 {
		c.Realtime.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Realtime.SubscribeTimeout == 0 {
		c.Realtime.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.Realtime.EventBufferSize == 0 {
		c.Realtime.EventBufferSize = DefaultEventBufferSize
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Inbox writer defaults
	if c.Inbox.BatchSize == 0 {
		c.Inbox.BatchSize = DefaultBatchSize
	}
	if c.Inbox.FlushInterval == 0 {
		c.Inbox.FlushInterval = DefaultFlushInterval
	}
	if c.Inbox.BufferSize == 0 {
		c.Inbox.BufferSize = DefaultBufferSize
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
