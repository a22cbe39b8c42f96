package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Auth: AuthConfig{JWTSecret: "unit-test-secret"},
		AI:   AIConfig{BaseURL: "https://example.com/v1", Model: "qwen-turbo"},
		WebSocket: WebSocketConfig{
			HeartbeatInterval: 30,
			HeartbeatTimeout:  60,
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.Auth.JWTSecret = ""
	require.ErrorContains(t, cfg.Validate(), "jwt_secret")

	cfg = validConfig()
	cfg.WebSocket.HeartbeatTimeout = 59
	require.ErrorContains(t, cfg.Validate(), "twice")

	// Exactly double is the floor, not a violation.
	cfg = validConfig()
	cfg.WebSocket.HeartbeatInterval = 15
	cfg.WebSocket.HeartbeatTimeout = 30
	require.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.WebSocket.HeartbeatInterval = 0
	require.ErrorContains(t, cfg.Validate(), "heartbeat_interval")

	cfg = validConfig()
	cfg.AI.Model = ""
	require.ErrorContains(t, cfg.Validate(), "ai.model")

	cfg = validConfig()
	cfg.AI.BaseURL = ""
	require.ErrorContains(t, cfg.Validate(), "ai.base_url")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9100
auth:
  jwt_secret: unit-test-secret
websocket:
  heartbeat_interval: 5
  heartbeat_timeout: 12
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// File values win, defaults fill the rest.
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, "qwen-turbo", cfg.AI.Model)
	require.Equal(t, 5*time.Second, cfg.WebSocket.Interval())
	require.Equal(t, 12*time.Second, cfg.WebSocket.Timeout())
	require.Equal(t, int64(65536), cfg.WebSocket.MaxMessageBytes)
	require.Equal(t, "0.0.0.0:9100", cfg.Address())
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "jwt_secret")
}

func TestDurationHelpers(t *testing.T) {
	auth := AuthConfig{AccessTokenMinutes: 30, RefreshTokenDays: 7}
	require.Equal(t, 30*time.Minute, auth.AccessTokenTTL())
	require.Equal(t, 7*24*time.Hour, auth.RefreshTokenTTL())

	ws := WebSocketConfig{WriteWait: 10}
	require.Equal(t, 10*time.Second, ws.WriteDeadline())

	ai := AIConfig{TimeoutSeconds: 60}
	require.Equal(t, time.Minute, ai.Timeout())
}
