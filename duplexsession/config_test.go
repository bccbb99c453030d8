package duplexsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.CloseTimeout)
	assert.Equal(t, "Closing", cfg.CloseReason)
	assert.Equal(t, "close", cfg.CloseSentinel)
	assert.Equal(t, int64(1<<20), cfg.ReadLimit)
	assert.Nil(t, cfg.Dialer)
	assert.NotNil(t, cfg.dialer())
}

func TestBuildURL(t *testing.T) {
	t.Run("valid addresses", func(t *testing.T) {
		cases := []struct {
			address string
			secure  bool
			want    string
		}{
			{"localhost:8080", false, "ws://localhost:8080/"},
			{"localhost:8080", true, "wss://localhost:8080/"},
			{"game.example.com", false, "ws://game.example.com/"},
			{"game.example.com/", true, "wss://game.example.com/"},
			{"  10.0.0.1:9000 ", false, "ws://10.0.0.1:9000/"},
			{"host:1/lobby", false, "ws://host:1/lobby/"},
		}

		for _, c := range cases {
			got, err := BuildURL(c.address, c.secure)
			require.NoError(t, err, c.address)
			assert.Equal(t, c.want, got, c.address)
		}
	})

	t.Run("invalid addresses", func(t *testing.T) {
		for _, address := range []string{"", "   ", "ws://host:1", "/only/path", "host:port:bad%zz"} {
			_, err := BuildURL(address, false)
			assert.ErrorIs(t, err, ErrInvalidAddress, address)
		}
	})
}

func TestConfig_withDefaults(t *testing.T) {
	got := Config{}.withDefaults()
	want := DefaultConfig()
	want.WriteTimeout = 0

	assert.Equal(t, want, got)

	custom := Config{CloseReason: "bye", CloseSentinel: "quit", CloseTimeout: -1}.withDefaults()
	assert.Equal(t, "bye", custom.CloseReason)
	assert.Equal(t, "quit", custom.CloseSentinel)
	assert.Equal(t, time.Duration(-1), custom.CloseTimeout)
}
