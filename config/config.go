// Package config loads the duplex client configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cyberinferno/go-duplexsocket/duplexsession"
	"github.com/cyberinferno/go-duplexsocket/logger"
	"github.com/cyberinferno/go-duplexsocket/transport"
)

// Transport backend names.
const (
	TransportGorilla = "gorilla"
	TransportCoder   = "coder"
)

// Environment variables read by ApplyEnv.
const (
	EnvAddress   = "DUPLEX_ADDRESS"
	EnvSecure    = "DUPLEX_SECURE"
	EnvTransport = "DUPLEX_TRANSPORT"
	EnvLogLevel  = "DUPLEX_LOG_LEVEL"
)

// ClientConfig holds all settings of the duplex client.
type ClientConfig struct {
	// Address is the bare host[:port] to connect to.
	Address string `yaml:"address"`
	// Secure selects wss:// instead of ws://.
	Secure bool `yaml:"secure"`
	// Transport is the WebSocket backend: "gorilla" or "coder".
	Transport string        `yaml:"transport"`
	Session   SessionConfig `yaml:"session"`
	Log       logger.Config `yaml:"log"`
}

// SessionConfig mirrors the tunable parts of duplexsession.Config.
type SessionConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	CloseTimeout     time.Duration `yaml:"close_timeout"`
	CloseReason      string        `yaml:"close_reason"`
	CloseSentinel    string        `yaml:"close_sentinel"`
	ReadLimit        int64         `yaml:"read_limit"`
}

// DefaultConfig returns a ClientConfig with the session and logging defaults.
func DefaultConfig() *ClientConfig {
	session := duplexsession.DefaultConfig()

	return &ClientConfig{
		Address:   "localhost:8080",
		Transport: TransportGorilla,
		Session: SessionConfig{
			HandshakeTimeout: session.HandshakeTimeout,
			WriteTimeout:     session.WriteTimeout,
			CloseTimeout:     session.CloseTimeout,
			CloseReason:      session.CloseReason,
			CloseSentinel:    session.CloseSentinel,
			ReadLimit:        session.ReadLimit,
		},
		Log: logger.DefaultConfig("duplexclient"),
	}
}

// Load reads configuration from a YAML file on top of the defaults.
// If the file doesn't exist, the defaults are returned.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - The loaded configuration
//   - An error if the file cannot be read or parsed
func Load(path string) (*ClientConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from DUPLEX_* environment variables that are set.
//
// Returns:
//   - An error if DUPLEX_SECURE is not a boolean
func (c *ClientConfig) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvAddress); ok {
		c.Address = v
	}

	if v, ok := os.LookupEnv(EnvSecure); ok {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSecure, err)
		}
		c.Secure = secure
	}

	if v, ok := os.LookupEnv(EnvTransport); ok {
		c.Transport = v
	}

	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}

	return nil
}

// Validate reports the first invalid setting.
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return errors.New("address is required")
	}

	switch c.Transport {
	case TransportGorilla, TransportCoder:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	if c.Session.HandshakeTimeout <= 0 || c.Session.WriteTimeout <= 0 || c.Session.CloseTimeout <= 0 {
		return errors.New("session timeouts must be positive")
	}

	if c.Session.CloseSentinel == "" {
		return errors.New("close_sentinel must not be empty")
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

// DuplexSessionConfig builds the duplexsession.Config with the selected transport.
func (c *ClientConfig) DuplexSessionConfig() duplexsession.Config {
	cfg := duplexsession.Config{
		HandshakeTimeout: c.Session.HandshakeTimeout,
		WriteTimeout:     c.Session.WriteTimeout,
		CloseTimeout:     c.Session.CloseTimeout,
		CloseReason:      c.Session.CloseReason,
		CloseSentinel:    c.Session.CloseSentinel,
		ReadLimit:        c.Session.ReadLimit,
	}

	if c.Transport == TransportCoder {
		cfg.Dialer = transport.NewCoderDialer(transport.CoderOptions{
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			ReadLimit:        cfg.ReadLimit,
		})
	}

	return cfg
}
