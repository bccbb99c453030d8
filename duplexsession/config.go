package duplexsession

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cyberinferno/go-duplexsocket/transport"
)

const (
	WebsocketProtocol       = "ws://"
	SecureWebsocketProtocol = "wss://"
)

var (
	// ErrConnectionFailed wraps every error returned by Connect and passed to
	// its failure callback.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrInvalidAddress is returned for addresses that cannot form a URL.
	ErrInvalidAddress = errors.New("invalid address")
)

// Config holds configuration for a DuplexSocketSession.
type Config struct {
	// HandshakeTimeout is the max duration for the opening handshake.
	HandshakeTimeout time.Duration
	// WriteTimeout is the max duration for a single frame write; 0 means no timeout.
	WriteTimeout time.Duration
	// CloseTimeout is how long to wait for the peer to answer a close frame
	// before the connection is aborted; a negative value waits indefinitely.
	CloseTimeout time.Duration
	// CloseReason is the reason text sent with the normal-closure close frame.
	CloseReason string
	// CloseSentinel is the queue value that makes the send loop close the
	// connection instead of sending it.
	CloseSentinel string
	// ReadLimit is the maximum accepted inbound message size in bytes.
	ReadLimit int64
	// Dialer opens connections; nil selects the gorilla/websocket backend
	// configured from the fields above.
	Dialer transport.Dialer
}

// DefaultConfig returns a Config with default values.
//
// Returns:
//   - A Config with defaults: HandshakeTimeout 10s, WriteTimeout 10s,
//     CloseTimeout 5s, CloseReason "Closing", CloseSentinel "close",
//     ReadLimit 1 MiB and the gorilla/websocket dialer.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		CloseTimeout:     5 * time.Second,
		CloseReason:      "Closing",
		CloseSentinel:    "close",
		ReadLimit:        1 << 20,
	}
}

// BuildURL prefixes address with ws:// or wss:// and appends the root path.
//
// Parameters:
//   - address: A bare host[:port], optionally followed by a path
//   - secure: Selects wss:// when true
//
// Returns:
//   - The WebSocket URL
//   - An error wrapping ErrInvalidAddress if address is empty, already has a
//     scheme, or does not parse
func BuildURL(address string, secure bool) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	if strings.Contains(address, "://") {
		return "", fmt.Errorf("%w: %q already has a scheme", ErrInvalidAddress, address)
	}

	protocol := WebsocketProtocol
	if secure {
		protocol = SecureWebsocketProtocol
	}

	raw := protocol + strings.TrimSuffix(address, "/") + "/"
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidAddress, address)
	}

	return raw, nil
}

// withDefaults fills zero-valued fields from DefaultConfig. WriteTimeout is
// left alone since 0 means no timeout.
func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = def.CloseTimeout
	}
	if c.CloseReason == "" {
		c.CloseReason = def.CloseReason
	}
	if c.CloseSentinel == "" {
		c.CloseSentinel = def.CloseSentinel
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = def.ReadLimit
	}

	return c
}

func (c Config) dialer() transport.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}

	return transport.NewGorillaDialer(transport.GorillaOptions{
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
		ReadLimit:        c.ReadLimit,
	})
}
