package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, TransportGorilla, cfg.Transport)
	assert.Equal(t, "close", cfg.Session.CloseSentinel)
	assert.Equal(t, "Closing", cfg.Session.CloseReason)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("overrides only the given fields", func(t *testing.T) {
		path := writeFile(t, `
address: game.example.com:443
secure: true
transport: coder
session:
  close_timeout: 2s
  close_reason: bye
log:
  level: debug
  console_format: json
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "game.example.com:443", cfg.Address)
		assert.True(t, cfg.Secure)
		assert.Equal(t, TransportCoder, cfg.Transport)
		assert.Equal(t, 2*time.Second, cfg.Session.CloseTimeout)
		assert.Equal(t, "bye", cfg.Session.CloseReason)
		assert.Equal(t, 10*time.Second, cfg.Session.WriteTimeout)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.ConsoleFormat)
		assert.True(t, cfg.Log.Console)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		_, err := Load(writeFile(t, "address: [unterminated"))
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvAddress, "10.0.0.2:9000")
	t.Setenv(EnvSecure, "true")
	t.Setenv(EnvTransport, TransportCoder)
	t.Setenv(EnvLogLevel, "warn")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "10.0.0.2:9000", cfg.Address)
	assert.True(t, cfg.Secure)
	assert.Equal(t, TransportCoder, cfg.Transport)
	assert.Equal(t, "warn", cfg.Log.Level)

	t.Setenv(EnvSecure, "sometimes")
	assert.Error(t, cfg.ApplyEnv())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *ClientConfig){
		"empty address":     func(c *ClientConfig) { c.Address = " " },
		"unknown transport": func(c *ClientConfig) { c.Transport = "carrier-pigeon" },
		"zero timeout":      func(c *ClientConfig) { c.Session.CloseTimeout = 0 },
		"empty sentinel":    func(c *ClientConfig) { c.Session.CloseSentinel = "" },
		"bad log level":     func(c *ClientConfig) { c.Log.Level = "loud" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDuplexSessionConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.CloseReason = "bye"

	sc := cfg.DuplexSessionConfig()
	assert.Equal(t, "bye", sc.CloseReason)
	assert.Nil(t, sc.Dialer)

	cfg.Transport = TransportCoder
	assert.NotNil(t, cfg.DuplexSessionConfig().Dialer)
}
