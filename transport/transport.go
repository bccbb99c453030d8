// Package transport abstracts the WebSocket client library behind a small
// Dialer/Conn pair so a session can run over either gorilla/websocket or
// coder/websocket.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Close status codes used by sessions.
const (
	StatusNormalClosure   = 1000
	StatusGoingAway       = 1001
	// StatusAbnormalClosure is never sent on the wire. Libraries report it
	// when the connection dropped without a close frame.
	StatusAbnormalClosure = 1006
)

// MessageType identifies the kind of a data frame.
type MessageType int

const (
	TextMessage MessageType = iota + 1
	BinaryMessage
)

// String returns a human-readable name for the message type.
func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "Text"
	case BinaryMessage:
		return "Binary"
	default:
		return "Unknown"
	}
}

// Frame is one complete data message read from the connection.
type Frame struct {
	Type MessageType
	Data []byte
}

// ErrConnClosed is returned by Conn methods after the connection was aborted
// locally.
var ErrConnClosed = errors.New("connection closed")

// CloseError reports that the peer sent a close frame. ReadFrame returns it
// once the closing handshake has been observed. A connection that dropped
// without a close frame is reported as a plain error instead.
type CloseError struct {
	Code   int
	Reason string
}

// Error implements error.
func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket closed: status %d %q", e.Code, e.Reason)
}

// Conn is a single established WebSocket connection.
//
// ReadFrame must only be called by one goroutine and WriteText by one other
// goroutine. Close and Abort may be called from any goroutine.
type Conn interface {
	// WriteText sends msg as one complete UTF-8 text frame.
	//
	// Parameters:
	//   - ctx: Context bounding the write
	//   - msg: The text payload
	//
	// Returns:
	//   - An error if the frame could not be written
	WriteText(ctx context.Context, msg string) error

	// ReadFrame blocks until the next data frame arrives.
	//
	// Parameters:
	//   - ctx: Context bounding the read; cancelling it may tear down the connection
	//
	// Returns:
	//   - The received frame
	//   - A *CloseError when the peer closed the connection, or another error
	ReadFrame(ctx context.Context) (Frame, error)

	// Close starts the closing handshake with the given status code and
	// reason. The peer's reply is observed by the reader, which then returns
	// a *CloseError. Backends whose library completes the handshake
	// internally may block until it finishes.
	//
	// Returns:
	//   - An error if the close frame could not be sent
	Close(code int, reason string) error

	// Abort closes the underlying network connection without a handshake.
	// It is safe to call multiple times.
	Abort() error
}

// Dialer opens client connections.
type Dialer interface {
	// Dial performs the opening handshake against url.
	//
	// Parameters:
	//   - ctx: Context bounding the handshake
	//   - url: A ws:// or wss:// URL
	//
	// Returns:
	//   - The established connection, or an error if the handshake failed
	Dial(ctx context.Context, url string) (Conn, error)
}
