package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
)

// Transport errors. Both route into the Reconnecting state and are never
// surfaced to the application as fatal.
var (
	ErrConnectFailed = errors.New("connect failed")
	ErrSocketClosed  = errors.New("socket closed")
	ErrNotConnected  = errors.New("not connected")
)

// Socket is the minimal frame transport the client runs on. The production
// implementation wraps gorilla/websocket; tests substitute in-memory fakes.
type Socket interface {
	// ReadMessage blocks until the next frame or a transport error.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// DialFunc establishes a Socket.
type DialFunc func(ctx context.Context) (Socket, error)

// DefaultDialer is the gorilla dialer used by Dial, with compression on.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

// Dial connects the WebSocket at url.
func Dial(ctx context.Context, url string) (Socket, error) {
	conn, res, err := DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer res.Body.Close()
	return &wsSocket{conn: conn}, nil
}

type wsSocket struct {
	conn *gorilla.Conn

	// writeMu serializes writes; gorilla permits one concurrent writer.
	writeMu sync.Mutex
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSocketClosed, err)
	}
	return data, nil
}

func (s *wsSocket) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(gorilla.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrSocketClosed, err)
	}
	return nil
}

func (s *wsSocket) Close() error {
	// Best-effort close frame so the server sees a clean shutdown; the
	// local connection is torn down regardless.
	s.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), deadline)
	s.writeMu.Unlock()
	return s.conn.Close()
}
