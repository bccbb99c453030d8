package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// GorillaOptions configures the gorilla/websocket backend.
type GorillaOptions struct {
	// HandshakeTimeout bounds the opening handshake; 0 means no limit beyond ctx.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds every write when the caller's ctx has no deadline.
	WriteTimeout time.Duration
	// ReadLimit is the maximum accepted message size in bytes; 0 means no limit.
	ReadLimit int64
	// TLSClientConfig is used for wss:// URLs; nil uses the system defaults.
	TLSClientConfig *tls.Config
	// Header is sent with the opening handshake request.
	Header http.Header
}

type gorillaDialer struct {
	opts   GorillaOptions
	dialer *websocket.Dialer
}

// NewGorillaDialer creates a Dialer backed by github.com/gorilla/websocket.
//
// Parameters:
//   - opts: Handshake, write and read settings
//
// Returns:
//   - A Dialer ready to use
func NewGorillaDialer(opts GorillaOptions) Dialer {
	return &gorillaDialer{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
			TLSClientConfig:  opts.TLSClientConfig,
		},
	}
}

// Dial implements Dialer.
func (d *gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}

		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if d.opts.ReadLimit > 0 {
		conn.SetReadLimit(d.opts.ReadLimit)
	}

	return &gorillaConn{conn: conn, writeTimeout: d.opts.WriteTimeout}, nil
}

type gorillaConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	aborted      atomic.Bool
	abortOnce    sync.Once
	abortErr     error
}

func (c *gorillaConn) writeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}

	if c.writeTimeout > 0 {
		return time.Now().Add(c.writeTimeout)
	}

	return time.Time{}
}

// WriteText implements Conn.
func (c *gorillaConn) WriteText(ctx context.Context, msg string) error {
	if c.aborted.Load() {
		return ErrConnClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.conn.SetWriteDeadline(c.writeDeadline(ctx)); err != nil {
		return err
	}

	return c.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// ReadFrame implements Conn. Cancelling ctx expires the read deadline, which
// leaves the connection unusable.
func (c *gorillaConn) ReadFrame(ctx context.Context) (Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code != StatusAbnormalClosure {
			return Frame{}, &CloseError{Code: closeErr.Code, Reason: closeErr.Text}
		}

		if c.aborted.Load() {
			return Frame{}, fmt.Errorf("%w: %v", ErrConnClosed, err)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Frame{}, ctxErr
		}

		return Frame{}, err
	}

	switch mt {
	case websocket.TextMessage:
		return Frame{Type: TextMessage, Data: data}, nil
	default:
		return Frame{Type: BinaryMessage, Data: data}, nil
	}
}

// Close implements Conn. It only writes the close frame; the peer's reply is
// read by ReadFrame.
func (c *gorillaConn) Close(code int, reason string) error {
	if c.aborted.Load() {
		return ErrConnClosed
	}

	deadline := time.Now().Add(time.Second)
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}

	err := c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}

	return err
}

// Abort implements Conn.
func (c *gorillaConn) Abort() error {
	c.abortOnce.Do(func() {
		c.aborted.Store(true)
		c.abortErr = c.conn.Close()
	})

	return c.abortErr
}
