package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-notifier
  recipient: user-1
api:
  rest_url: https://api.staging.classline.app/v1
  key_id: key-123
  private_key_path: /tmp/key.pem
database:
  postgres:
    host: localhost
    port: 5432
    name: test_db
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-notifier" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-notifier")
	}
	if cfg.Instance.Recipient != "user-1" {
		t.Errorf("Instance.Recipient = %q, want %q", cfg.Instance.Recipient, "user-1")
	}
	if cfg.API.RestURL != "https://api.staging.classline.app/v1" {
		t.Errorf("API.RestURL = %q, want %q", cfg.API.RestURL, "https://api.staging.classline.app/v1")
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database.Postgres.Host = %q, want %q", cfg.Database.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-notifier
  recipient: user-1
database:
  postgres:
    host: localhost
    name: test_db
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-notifier
  recipient: user-1
database:
  postgres:
    host: localhost
    name: test_db
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("API.RestURL = %q, want default %q", cfg.API.RestURL, DefaultRestURL)
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.Realtime.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("Realtime.MaxReconnectAttempts = %d, want default %d", cfg.Realtime.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cfg.Realtime.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("Realtime.ReconnectDelay = %v, want default %v", cfg.Realtime.ReconnectDelay, DefaultReconnectDelay)
	}
	if cfg.Realtime.FallbackPollingInterval != DefaultFallbackPollingInterval {
		t.Errorf("Realtime.FallbackPollingInterval = %v, want default %v", cfg.Realtime.FallbackPollingInterval, DefaultFallbackPollingInterval)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Inbox.BatchSize != DefaultBatchSize {
		t.Errorf("Inbox.BatchSize = %d, want default %d", cfg.Inbox.BatchSize, DefaultBatchSize)
	}
}

func TestValidate(t *testing.T) {
	validRealtime := RealtimeConfig{
		MaxReconnectAttempts:    5,
		ReconnectDelay:          time.Second,
		FallbackPollingInterval: 5 * time.Second,
		HeartbeatInterval:       10 * time.Second,
		SubscribeTimeout:        10 * time.Second,
		EventBufferSize:         256,
	}

	tests := []struct {
		name    string
		cfg     NotifierConfig
		wantErr string
	}{
		{
			name:    "missing instance id",
			cfg:     NotifierConfig{},
			wantErr: "instance.id is required",
		},
		{
			name: "missing recipient",
			cfg: NotifierConfig{
				Instance: InstanceConfig{ID: "test"},
			},
			wantErr: "instance.recipient is required",
		},
		{
			name: "missing api key",
			cfg: NotifierConfig{
				Instance: InstanceConfig{ID: "test", Recipient: "user-1"},
			},
			wantErr: "api.key_id is required",
		},
		{
			name: "missing postgres host",
			cfg: NotifierConfig{
				Instance: InstanceConfig{ID: "test", Recipient: "user-1"},
				API:      APIConfig{KeyID: "key-123", PrivateKeyPath: "/tmp/key.pem"},
				Realtime: validRealtime,
			},
			wantErr: "database.postgres.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			cfg: NotifierConfig{
				Instance: InstanceConfig{ID: "test", Recipient: "user-1"},
				API:      APIConfig{KeyID: "key-123", PrivateKeyPath: "/tmp/key.pem"},
				Realtime: validRealtime,
				Database: DatabaseConfig{
					Postgres: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10},
				},
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "valid config",
			cfg: NotifierConfig{
				Instance: InstanceConfig{ID: "test", Recipient: "user-1"},
				API:      APIConfig{KeyID: "key-123", PrivateKeyPath: "/tmp/key.pem"},
				Realtime: validRealtime,
				Database: DatabaseConfig{
					Postgres: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2},
				},
				Inbox: InboxConfig{
					BatchSize:     100,
					FlushInterval: time.Second,
					BufferSize:    1000,
				},
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
