package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ws://127.0.0.1:8573/ws", cfg.Server.URL)
	assert.Equal(t, time.Second, cfg.Reconnect.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxBackoff)
	assert.Equal(t, 64, cfg.Reconnect.EmitBuffer)
	assert.Equal(t, 10*time.Second, cfg.Console.HistoryWait)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentdeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  url: wss://agent.example.com/ws
reconnect:
  initial_backoff: 2s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://agent.example.com/ws", cfg.Server.URL)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.InitialBackoff)
	// Unset keys keep defaults
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxBackoff)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIG_LOAD_FAILED")
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Config{
		Server:    ServerConfig{URL: "http://not-a-websocket"},
		Reconnect: ReconnectConfig{InitialBackoff: -1, MaxBackoff: -2, EmitBuffer: 0},
		Console:   ConsoleConfig{HistoryWait: 0},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.url")
	assert.Contains(t, err.Error(), "initial_backoff")
	assert.Contains(t, err.Error(), "emit_buffer")
	assert.Contains(t, err.Error(), "history_wait")
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, Defaults().Validate())
}
