package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adwski/realtime-session/backend/client/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, websocket.DefaultURL, cfg.Channel.URL)
	assert.True(t, cfg.Channel.WithCredentials)
	assert.True(t, cfg.Channel.Reconnect)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("SESSION_COOKIE", "from-env")
	path := writeConfig(t, `
channel:
  url: ws://10.0.0.5:5000/ws
  with_credentials: false
  cookies:
    session: ${SESSION_COOKIE}
  ping_interval: 2s
  reconnect_attempts: 3
  reconnect_delay: 500ms
session:
  user_id: user-123
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://10.0.0.5:5000/ws", cfg.Channel.URL)
	assert.False(t, cfg.Channel.WithCredentials)
	assert.True(t, cfg.Channel.Reconnect, "untouched defaults survive")
	assert.Equal(t, map[string]string{"session": "from-env"}, cfg.Channel.Cookies)
	assert.Equal(t, 2*time.Second, cfg.Channel.PingInterval)
	assert.Equal(t, uint64(3), cfg.Channel.ReconnectAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Channel.ReconnectDelay)
	assert.Equal(t, "user-123", cfg.Session.UserID)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "channel: [not, a, map]"))
	assert.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--url", "ws://localhost:1234/ws",
		"--user-id", "user-9",
		"--cookie", "session=abc",
		"--with-credentials=false",
		"-l", "trace",
	}))

	cfg := Default()
	cfg.Channel.Cookies = map[string]string{"theme": "dark"}
	cfg.Session.RoomID = "kept"
	require.NoError(t, cfg.ApplyFlags(fs))

	assert.Equal(t, "ws://localhost:1234/ws", cfg.Channel.URL)
	assert.Equal(t, "user-9", cfg.Session.UserID)
	assert.Equal(t, "kept", cfg.Session.RoomID)
	assert.Equal(t, map[string]string{"theme": "dark", "session": "abc"}, cfg.Channel.Cookies)
	assert.False(t, cfg.Channel.WithCredentials)
	assert.True(t, cfg.Channel.Reconnect)
	assert.Equal(t, "trace", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Channel.URL = ""
	cfg.LogLevel = "loud"
	cfg.Channel.EmitRate = -1
	cfg.Channel.ReconnectDelay = time.Second
	cfg.Channel.ReconnectDelayMax = time.Millisecond
	cfg.Session.RoomID = "room"

	err := cfg.Validate()
	require.Error(t, err)
	for _, part := range []string{"channel.url", "log_level", "emit_rate", "reconnect_delay_max", "api.base_url"} {
		assert.Contains(t, err.Error(), part)
	}
}

func TestWebsocketConfig(t *testing.T) {
	cfg := Default()
	cfg.Channel.Cookies = map[string]string{"b": "2", "a": "1"}
	cfg.Channel.ReconnectAttempts = 4

	logger := zerolog.Nop()
	wc := cfg.WebsocketConfig(&logger, nil)

	assert.Equal(t, websocket.DefaultURL, wc.URL)
	assert.True(t, wc.WithCredentials)
	assert.True(t, wc.Reconnect)
	assert.Equal(t, uint64(4), wc.ReconnectAttempts)
	require.Len(t, wc.Cookies, 2)
	assert.Equal(t, "a", wc.Cookies[0].Name)
	assert.Equal(t, "2", wc.Cookies[1].Value)

	_, err := websocket.New(wc)
	assert.NoError(t, err)
}
