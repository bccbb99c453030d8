// Package duplexsession provides a client-side WebSocket session: one
// connection, an unbounded outbound text queue drained by a send loop, and a
// receive loop that logs and delivers incoming text frames.
//
// A session owns at most one connection at a time. Connecting while open
// closes the previous connection first. The two loops run only while the
// session is Open and stop once the connection leaves that state, whether the
// close was requested locally, through the close sentinel, or by the peer.
package duplexsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyberinferno/go-duplexsocket/logger"
	"github.com/cyberinferno/go-duplexsocket/outbox"
	"github.com/cyberinferno/go-duplexsocket/transport"
)

// State represents the current state of the session's connection.
type State int

const (
	Closed     State = iota // No connection; the initial state
	Connecting              // Opening handshake in progress
	Open                    // Connected; send and receive loops running
	Closing                 // Close handshake in progress
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// StateChangeEvent is emitted when the session state changes.
// It is passed to the handler registered with OnStateChange.
type StateChangeEvent struct {
	State     State     // The new state
	Address   string    // The address passed to Connect
	Timestamp time.Time // When the change occurred
	Error     error     // Non-nil if the change was caused by a failure
}

// MessageEvent carries one received text message.
// It is passed to the handler registered with OnMessage.
type MessageEvent struct {
	Message   string
	Timestamp time.Time
}

// StateChangeHandler is called when the session state changes.
// Handlers are invoked from their own goroutines and may observe events out
// of order; implementations must be safe for concurrent use.
type StateChangeHandler func(event StateChangeEvent)

// MessageHandler is called for every received text message, in arrival
// order, from the receive loop. A slow handler delays further reads.
// While a handler runs, Disconnect starts the close but does not wait for
// the loops to stop, since the receive loop cannot finish until the handler
// returns.
type MessageHandler func(event MessageEvent)

// DuplexSocketSession manages one client WebSocket connection with a queued
// send path and a logging receive path. It is safe for concurrent use.
type DuplexSocketSession struct {
	id     string
	config Config
	log    logger.Logger
	dialer transport.Dialer
	outbox *outbox.Queue[string]

	connectMu sync.Mutex

	mu            sync.RWMutex
	state         State
	address       string
	link          *link
	onStateChange StateChangeHandler
	onMessage     MessageHandler
}

// NewDuplexSocketSession creates a session in the Closed state. Zero-valued
// config fields other than WriteTimeout and Dialer take their DefaultConfig
// values.
//
// Parameters:
//   - config: Timeouts, close settings and dialer (e.g. from DefaultConfig)
//   - log: Logger for session activity; nil discards logs
//
// Returns:
//   - A new *DuplexSocketSession; call Connect to open a connection
func NewDuplexSocketSession(config Config, log logger.Logger) *DuplexSocketSession {
	if log == nil {
		log = logger.NewNopLogger()
	}

	config = config.withDefaults()

	id := uuid.NewString()
	return &DuplexSocketSession{
		id:     id,
		config: config,
		log:    log.With(logger.Field{Key: "session", Value: id}),
		dialer: config.dialer(),
		outbox: outbox.New[string](),
		state:  Closed,
	}
}

// OnStateChange registers the handler for state changes.
// Only one handler is active; repeated calls replace the previous handler.
// Pass nil to clear the handler.
func (s *DuplexSocketSession) OnStateChange(handler StateChangeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = handler
}

// OnMessage registers the handler for received text messages.
// Only one handler is active; repeated calls replace the previous handler.
// Pass nil to clear the handler.
func (s *DuplexSocketSession) OnMessage(handler MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = handler
}

// Connect closes any open connection, then dials address. On success the
// state becomes Open, the send and receive loops start, and onSuccess is
// called. On failure the state returns to Closed and onFailure is called with
// the same error Connect returns. Either callback may be nil and at most one
// of them is invoked. Concurrent calls are serialized.
//
// Parameters:
//   - ctx: Context bounding the close of the previous connection and the dial
//   - address: A bare host[:port]; the scheme is chosen by secure
//   - secure: Use wss:// instead of ws://
//   - onSuccess: Called once the connection is open
//   - onFailure: Called with the error if the connection could not be opened
//
// Returns:
//   - nil on success; otherwise an error wrapping ErrConnectionFailed
func (s *DuplexSocketSession) Connect(
	ctx context.Context,
	address string,
	secure bool,
	onSuccess func(),
	onFailure func(error),
) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	fail := func(err error) error {
		err = fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		if onFailure != nil {
			onFailure(err)
		}

		return err
	}

	if err := s.Disconnect(ctx); err != nil {
		return fail(fmt.Errorf("closing previous connection: %w", err))
	}

	target, err := BuildURL(address, secure)
	if err != nil {
		s.log.Warn("connection failed", logger.Field{Key: "address", Value: address}, logger.Field{Key: "error", Value: err})
		return fail(err)
	}

	s.mu.Lock()
	s.address = address
	s.mu.Unlock()

	log := s.log.With(logger.Field{Key: "url", Value: target})
	s.setState(Connecting, nil)

	conn, err := s.dialer.Dial(ctx, target)
	if err != nil {
		log.Warn("connection failed", logger.Field{Key: "error", Value: err})
		s.setState(Closed, err)
		return fail(err)
	}

	l := newLink(conn, log)

	s.mu.Lock()
	s.link = l
	s.mu.Unlock()
	s.setState(Open, nil)

	log.Info("connected")
	s.run(l)

	if onSuccess != nil {
		onSuccess()
	}

	return nil
}

// Disconnect closes the connection with a normal-closure handshake and waits
// until both loops have stopped and the connection is released. If a close
// is already in progress it waits for it. Otherwise it is a no-op.
// Idempotent. Called from a MessageHandler, it only starts the close.
//
// Parameters:
//   - ctx: Context bounding the wait; on expiry the connection is aborted
//
// Returns:
//   - nil once closed, or ctx.Err() if the wait was cut short; the session
//     reaches Closed shortly after the abort
func (s *DuplexSocketSession) Disconnect(ctx context.Context) error {
	s.mu.RLock()
	l := s.link
	state := s.state
	s.mu.RUnlock()

	if l == nil {
		return nil
	}

	switch state {
	case Open:
		s.beginClose(l)
	case Closing:
	default:
		return nil
	}

	// The receive loop is blocked in the caller until it returns.
	if l.inHandler.Load() {
		return nil
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.log.Warn("close handshake interrupted", logger.Field{Key: "error", Value: ctx.Err()})
		l.abort()
		return ctx.Err()
	}
}

// Enqueue appends message to the outbound queue. It never blocks. Messages
// queued while no connection is open are sent after the next Connect.
// Enqueuing the configured close sentinel closes the connection once all
// earlier messages have been sent.
//
// Parameters:
//   - message: UTF-8 text to send as one frame
func (s *DuplexSocketSession) Enqueue(message string) {
	s.outbox.Push(message)
}

// EnqueueClose queues the close sentinel.
func (s *DuplexSocketSession) EnqueueClose() {
	s.outbox.Push(s.config.CloseSentinel)
}

// ID returns the session's unique identifier, also attached to its logs.
func (s *DuplexSocketSession) ID() string {
	return s.id
}

// State returns the current state.
func (s *DuplexSocketSession) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsOpen returns true if the session is in the Open state.
func (s *DuplexSocketSession) IsOpen() bool {
	return s.State() == Open
}

// Address returns the address passed to the most recent Connect.
func (s *DuplexSocketSession) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Pending returns the number of queued outbound messages, sentinel included.
func (s *DuplexSocketSession) Pending() int {
	return s.outbox.Len()
}

// DiscardPending drops every queued outbound message, sentinel included.
//
// Returns:
//   - The number of dropped messages
func (s *DuplexSocketSession) DiscardPending() int {
	n := s.outbox.Clear()
	if n > 0 {
		s.log.Info("discarded pending messages", logger.Field{Key: "count", Value: n})
	}

	return n
}

func (s *DuplexSocketSession) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	handler := s.onStateChange
	address := s.address
	s.mu.Unlock()

	s.emitStateChange(handler, state, address, err)
}

// markClosing moves an Open session to Closing if l is still its link.
func (s *DuplexSocketSession) markClosing(l *link) {
	s.mu.Lock()
	if s.link != l || s.state != Open {
		s.mu.Unlock()
		return
	}

	s.state = Closing
	handler := s.onStateChange
	address := s.address
	s.mu.Unlock()

	s.emitStateChange(handler, Closing, address, nil)
}

// release detaches l and moves the session to Closed.
func (s *DuplexSocketSession) release(l *link, err error) {
	s.mu.Lock()
	if s.link != l {
		s.mu.Unlock()
		return
	}

	s.link = nil
	s.state = Closed
	handler := s.onStateChange
	address := s.address
	s.mu.Unlock()

	s.emitStateChange(handler, Closed, address, err)
}

func (s *DuplexSocketSession) emitStateChange(handler StateChangeHandler, state State, address string, err error) {
	if handler == nil {
		return
	}

	event := StateChangeEvent{
		State:     state,
		Address:   address,
		Timestamp: time.Now(),
		Error:     err,
	}

	go handler(event)
}

func (s *DuplexSocketSession) emitMessage(message string) {
	s.mu.RLock()
	handler := s.onMessage
	s.mu.RUnlock()

	if handler != nil {
		handler(MessageEvent{Message: message, Timestamp: time.Now()})
	}
}
