package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	coderws "github.com/coder/websocket"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEchoServer echoes text frames. When it reads "bye" it closes with status
// 1001, and when it reads "drop" it closes the TCP connection without a close
// frame.
func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			if string(data) == "drop" {
				_ = conn.UnderlyingConn().Close()
				return
			}

			if string(data) == "bye" {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				continue
			}

			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
}

func dialers() map[string]Dialer {
	return map[string]Dialer{
		"gorilla": NewGorillaDialer(GorillaOptions{HandshakeTimeout: time.Second, WriteTimeout: time.Second, ReadLimit: 1 << 20}),
		"coder":   NewCoderDialer(CoderOptions{HandshakeTimeout: time.Second, WriteTimeout: time.Second, ReadLimit: 1 << 20}),
	}
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "Text", TextMessage.String())
	assert.Equal(t, "Binary", BinaryMessage.String())
	assert.Equal(t, "Unknown", MessageType(99).String())
}

func TestCloseError_Error(t *testing.T) {
	err := &CloseError{Code: StatusNormalClosure, Reason: "Closing"}
	assert.Contains(t, err.Error(), "1000")
	assert.Contains(t, err.Error(), "Closing")
}

func TestDialers_EchoRoundTrip(t *testing.T) {
	srv := newEchoServer(t)

	for name, d := range dialers() {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, err := d.Dial(ctx, wsURL(srv))
			require.NoError(t, err)
			defer conn.Abort()

			require.NoError(t, conn.WriteText(ctx, "héllo"))

			frame, err := conn.ReadFrame(ctx)
			require.NoError(t, err)
			assert.Equal(t, TextMessage, frame.Type)
			assert.Equal(t, "héllo", string(frame.Data))
		})
	}
}

func TestDialers_PeerClose(t *testing.T) {
	srv := newEchoServer(t)

	for name, d := range dialers() {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, err := d.Dial(ctx, wsURL(srv))
			require.NoError(t, err)
			defer conn.Abort()

			require.NoError(t, conn.WriteText(ctx, "bye"))

			_, err = conn.ReadFrame(ctx)
			var closeErr *CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, StatusGoingAway, closeErr.Code)
			assert.Equal(t, "bye", closeErr.Reason)
		})
	}
}

func TestDialers_DroppedConnectionIsNotACloseError(t *testing.T) {
	srv := newEchoServer(t)

	for name, d := range dialers() {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, err := d.Dial(ctx, wsURL(srv))
			require.NoError(t, err)
			defer conn.Abort()

			require.NoError(t, conn.WriteText(ctx, "drop"))

			_, err = conn.ReadFrame(ctx)
			require.Error(t, err)

			var closeErr *CloseError
			assert.False(t, errors.As(err, &closeErr), "unexpected close error %v", err)
		})
	}
}

func TestDialers_DialFailure(t *testing.T) {
	for name, d := range dialers() {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			conn, err := d.Dial(ctx, "ws://127.0.0.1:1/")
			assert.Error(t, err)
			assert.Nil(t, conn)
		})
	}
}

func TestDialers_AbortIsIdempotent(t *testing.T) {
	srv := newEchoServer(t)

	for name, d := range dialers() {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, err := d.Dial(ctx, wsURL(srv))
			require.NoError(t, err)

			_ = conn.Abort()
			_ = conn.Abort()

			assert.ErrorIs(t, conn.WriteText(ctx, "late"), ErrConnClosed)
			assert.ErrorIs(t, conn.Close(StatusNormalClosure, "late"), ErrConnClosed)
		})
	}
}

func TestCoderDialer_AgainstCoderServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := coderws.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		_ = conn.Write(r.Context(), coderws.MessageBinary, []byte{0x01, 0x02})
		_, _, _ = conn.Read(r.Context())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := NewCoderDialer(CoderOptions{}).Dial(ctx, wsURL(srv))
	require.NoError(t, err)
	defer conn.Abort()

	frame, err := conn.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, BinaryMessage, frame.Type)
	assert.Equal(t, []byte{0x01, 0x02}, frame.Data)
}
