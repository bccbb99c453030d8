package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	coderws "github.com/coder/websocket"
)

// CoderOptions configures the coder/websocket backend.
type CoderOptions struct {
	// HandshakeTimeout bounds the opening handshake; 0 means no limit beyond ctx.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds every write when the caller's ctx has no deadline.
	WriteTimeout time.Duration
	// ReadLimit is the maximum accepted message size in bytes; 0 keeps the
	// library default.
	ReadLimit int64
	// HTTPClient performs the opening handshake; nil uses http.DefaultClient.
	// Its transport carries the TLS settings for wss:// URLs.
	HTTPClient *http.Client
	// Header is sent with the opening handshake request.
	Header http.Header
}

type coderDialer struct {
	opts CoderOptions
}

// NewCoderDialer creates a Dialer backed by github.com/coder/websocket.
//
// Parameters:
//   - opts: Handshake, write and read settings
//
// Returns:
//   - A Dialer ready to use
func NewCoderDialer(opts CoderOptions) Dialer {
	return &coderDialer{opts: opts}
}

// Dial implements Dialer.
func (d *coderDialer) Dial(ctx context.Context, url string) (Conn, error) {
	if d.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.HandshakeTimeout)
		defer cancel()
	}

	conn, _, err := coderws.Dial(ctx, url, &coderws.DialOptions{
		HTTPClient: d.opts.HTTPClient,
		HTTPHeader: d.opts.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if d.opts.ReadLimit > 0 {
		conn.SetReadLimit(d.opts.ReadLimit)
	}

	return &coderConn{conn: conn, writeTimeout: d.opts.WriteTimeout}, nil
}

type coderConn struct {
	conn         *coderws.Conn
	writeTimeout time.Duration
	aborted      atomic.Bool
	abortOnce    sync.Once
	abortErr     error
}

// WriteText implements Conn.
func (c *coderConn) WriteText(ctx context.Context, msg string) error {
	if c.aborted.Load() {
		return ErrConnClosed
	}

	if _, ok := ctx.Deadline(); !ok && c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}

	return c.conn.Write(ctx, coderws.MessageText, []byte(msg))
}

// ReadFrame implements Conn.
func (c *coderConn) ReadFrame(ctx context.Context) (Frame, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		var closeErr coderws.CloseError
		if errors.As(err, &closeErr) && int(closeErr.Code) != StatusAbnormalClosure {
			return Frame{}, &CloseError{Code: int(closeErr.Code), Reason: closeErr.Reason}
		}

		if c.aborted.Load() {
			return Frame{}, fmt.Errorf("%w: %v", ErrConnClosed, err)
		}

		return Frame{}, err
	}

	if typ == coderws.MessageText {
		return Frame{Type: TextMessage, Data: data}, nil
	}

	return Frame{Type: BinaryMessage, Data: data}, nil
}

// Close implements Conn. The library performs the whole handshake, so this
// blocks until the peer answers or the library's own timeout expires.
func (c *coderConn) Close(code int, reason string) error {
	if c.aborted.Load() {
		return ErrConnClosed
	}

	return c.conn.Close(coderws.StatusCode(code), reason)
}

// Abort implements Conn.
func (c *coderConn) Abort() error {
	c.abortOnce.Do(func() {
		c.aborted.Store(true)
		c.abortErr = c.conn.CloseNow()
	})

	return c.abortErr
}
