package duplexsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-duplexsocket/logger"
	"github.com/cyberinferno/go-duplexsocket/transport"
)

// link is the per-connection part of a session: the connection, its two
// loops and the teardown bookkeeping.
type link struct {
	conn transport.Conn
	log  logger.Logger

	// sendCtx is cancelled as soon as closing begins. ioCtx lives until the
	// connection is aborted.
	sendCtx  context.Context
	stopSend context.CancelFunc
	ioCtx    context.Context
	stopIO   context.CancelFunc

	group     errgroup.Group
	closing   atomic.Bool
	inHandler atomic.Bool
	closeOnce sync.Once
	abortOnce sync.Once

	mu         sync.Mutex
	abortTimer *time.Timer

	done chan struct{}
}

func newLink(conn transport.Conn, log logger.Logger) *link {
	ioCtx, stopIO := context.WithCancel(context.Background())
	sendCtx, stopSend := context.WithCancel(ioCtx)

	return &link{
		conn:     conn,
		log:      log,
		sendCtx:  sendCtx,
		stopSend: stopSend,
		ioCtx:    ioCtx,
		stopIO:   stopIO,
		done:     make(chan struct{}),
	}
}

// abort drops the connection without a handshake, unblocking both loops.
func (l *link) abort() {
	l.abortOnce.Do(func() {
		l.closing.Store(true)
		l.stopSend()
		l.stopIO()
		_ = l.conn.Abort()

		l.mu.Lock()
		if l.abortTimer != nil {
			l.abortTimer.Stop()
		}
		l.mu.Unlock()
	})
}

// run starts the send and receive loops and a supervisor that releases the
// connection once both have returned.
func (s *DuplexSocketSession) run(l *link) {
	l.group.Go(func() error { return s.sendLoop(l) })
	l.group.Go(func() error { return s.receiveLoop(l) })

	go func() {
		err := l.group.Wait()
		l.abort()
		s.release(l, err)

		if err != nil {
			l.log.Warn("disconnected", logger.Field{Key: "error", Value: err})
		} else {
			l.log.Info("disconnected")
		}

		close(l.done)
	}()
}

// beginClose stops the send loop and sends the close frame. The receive
// loop exits when the peer answers; if it does not within CloseTimeout the
// connection is aborted.
func (s *DuplexSocketSession) beginClose(l *link) {
	l.closeOnce.Do(func() {
		l.closing.Store(true)
		s.markClosing(l)
		l.stopSend()

		l.mu.Lock()
		if timeout := s.config.CloseTimeout; timeout > 0 {
			l.abortTimer = time.AfterFunc(timeout, func() {
				select {
				case <-l.done:
					return
				default:
				}

				l.log.Warn("close handshake timed out", logger.Field{Key: "timeout", Value: timeout.String()})
				l.abort()
			})
		}
		l.mu.Unlock()

		go func() {
			err := l.conn.Close(transport.StatusNormalClosure, s.config.CloseReason)
			if err != nil && !errors.Is(err, transport.ErrConnClosed) {
				l.log.Debug("close frame not acknowledged", logger.Field{Key: "error", Value: err})
				l.abort()
			}
		}()
	})
}

// sendLoop drains the outbox while the connection is open. A message leaves
// the queue only once it was written, so a failed write keeps it for the
// next connection.
func (s *DuplexSocketSession) sendLoop(l *link) error {
	for {
		// Wait returns a queued head even after cancellation.
		if l.sendCtx.Err() != nil {
			return nil
		}

		message, err := s.outbox.Wait(l.sendCtx)
		if err != nil {
			return nil
		}

		if message == s.config.CloseSentinel {
			s.outbox.Remove()
			l.log.Info("close requested")
			s.beginClose(l)
			return nil
		}

		if err := l.conn.WriteText(l.ioCtx, message); err != nil {
			if l.closing.Load() {
				return nil
			}

			l.log.Warn("send failed", logger.Field{Key: "error", Value: err})
			l.abort()
			return fmt.Errorf("send: %w", err)
		}

		s.outbox.Remove()
		l.log.Debug("sent", logger.Field{Key: "payload", Value: message})
	}
}

// receiveLoop reads frames until the connection closes. Text frames are
// logged and handed to the message handler; binary frames are dropped.
func (s *DuplexSocketSession) receiveLoop(l *link) error {
	for {
		frame, err := l.conn.ReadFrame(l.ioCtx)
		if err != nil {
			var closeErr *transport.CloseError
			if errors.As(err, &closeErr) {
				if l.closing.Load() {
					l.log.Debug("close handshake completed", logger.Field{Key: "code", Value: closeErr.Code})
				} else {
					l.log.Info("closed by peer",
						logger.Field{Key: "code", Value: closeErr.Code},
						logger.Field{Key: "reason", Value: closeErr.Reason})
				}

				l.closing.Store(true)
				s.markClosing(l)
				l.stopSend()
				return nil
			}

			if l.closing.Load() {
				return nil
			}

			l.log.Warn("receive failed", logger.Field{Key: "error", Value: err})
			l.abort()
			return fmt.Errorf("receive: %w", err)
		}

		if frame.Type != transport.TextMessage {
			l.log.Debug("ignoring frame",
				logger.Field{Key: "type", Value: frame.Type.String()},
				logger.Field{Key: "size", Value: len(frame.Data)})
			continue
		}

		message := string(frame.Data)
		l.log.Debug("received", logger.Field{Key: "payload", Value: message})

		l.inHandler.Store(true)
		s.emitMessage(message)
		l.inHandler.Store(false)
	}
}
