package config

import "time"

// NotifierConfig is the root configuration for a notifier instance.
type NotifierConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Database DatabaseConfig `yaml:"database"`
	Inbox    InboxConfig    `yaml:"inbox"`
}

// InstanceConfig identifies this notifier and the recipient it serves.
type InstanceConfig struct {
	ID        string `yaml:"id"`
	Recipient string `yaml:"recipient"`
}

// APIConfig holds Classline API settings.
type APIConfig struct {
	RestURL        string        `yaml:"rest_url"`
	WSURL          string        `yaml:"ws_url"`
	KeyID          string        `yaml:"key_id"`           // service-account key ID
	PrivateKeyPath string        `yaml:"private_key_path"` // path to RSA private key PEM file
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// RealtimeConfig holds push-channel connection manager settings.
type RealtimeConfig struct {
	MaxReconnectAttempts    int           `yaml:"max_reconnect_attempts"`
	ReconnectDelay          time.Duration `yaml:"reconnect_delay"`
	FallbackPollingInterval time.Duration `yaml:"fallback_polling_interval"`
	HeartbeatInterval       time.Duration `yaml:"heartbeat_interval"`
	SubscribeTimeout        time.Duration `yaml:"subscribe_timeout"`
	EventBufferSize         int           `yaml:"event_buffer_size"`
}

// DatabaseConfig holds the inbox database connection.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// InboxConfig holds batched inbox writer settings.
type InboxConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}
