package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/lxzan/gws"

	"github.com/arborsync/arbor/pkg/logger"
	"github.com/arborsync/arbor/pkg/op"
)

// sessionDocKey is the gws session storage key holding the document id a
// connection subscribed to.
const sessionDocKey = "doc"

// sessionConnKey holds the per-connection state in gws session storage.
const sessionConnKey = "conn_state"

// DefaultDocument is used when a client does not name a document.
const DefaultDocument = "main"

// Server exposes a Store over WebSocket. Clients connect with
// ws://host/?doc=<id> and are hydrated immediately on open.
type Server struct {
	addr     string
	store    *Store
	logger   logger.Logger
	ws       *gws.Server
	listener net.Listener
}

// connState tracks the per-socket writer goroutine and subscription.
type connState struct {
	docID string
	sub   *Subscription
	done  chan struct{}
}

type handler struct {
	srv *Server
}

// NewServer wires a Store to a WebSocket listener. Use "127.0.0.1:0" to
// bind a random port.
func NewServer(addr string, store *Store, log logger.Logger) *Server {
	s := &Server{
		addr:   addr,
		store:  store,
		logger: log,
	}
	s.ws = gws.NewServer(&handler{srv: s}, &gws.ServerOption{
		Authorize: func(r *http.Request, session gws.SessionStorage) bool {
			docID := r.URL.Query().Get("doc")
			if docID == "" {
				docID = DefaultDocument
			}
			session.Store(sessionDocKey, docID)
			return true
		},
	})
	s.ws.OnError = func(_ net.Conn, err error) {
		if !errors.Is(err, net.ErrClosed) {
			log.Error("websocket server error", "error", err)
		}
	}
	return s
}

// Start begins accepting connections. It returns once the listener is bound.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.ws.RunListener(listener); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("websocket server stopped", "error", err)
		}
	}()
	s.logger.Info("listening", "addr", listener.Addr().String())
	return nil
}

// Stop closes the listener. Live connections are torn down by their own
// read errors.
func (s *Server) Stop() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Address returns the bound address, useful with a ":0" listen address.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (h *handler) OnOpen(socket *gws.Conn) {
	docID := DefaultDocument
	if v, ok := socket.Session().Load(sessionDocKey); ok {
		if id, ok := v.(string); ok && id != "" {
			docID = id
		}
	}

	sub, err := h.srv.store.Subscribe(docID)
	if err != nil {
		h.srv.logger.Error("subscribe failed", "doc", docID, "error", err)
		socket.WriteClose(1011, []byte("subscribe failed"))
		return
	}

	cs := &connState{docID: docID, sub: sub, done: make(chan struct{})}
	socket.Session().Store(sessionConnKey, cs)

	// Writer goroutine: the only place this socket is written to from the
	// committed stream. A slow socket backs up the subscription queue and
	// gets dropped by the store, never blocking the commit path.
	go func() {
		for {
			select {
			case frame := <-sub.frames:
				if err := socket.WriteMessage(gws.OpcodeText, frame); err != nil {
					h.srv.logger.Debug("write failed, closing connection",
						"doc", docID, "subscriber", sub.ID, "error", err)
					socket.NetConn().Close()
					return
				}
			case <-sub.dropped:
				socket.WriteClose(1013, []byte("subscriber queue overflow"))
				return
			case <-cs.done:
				return
			}
		}
	}()
}

func (h *handler) OnClose(socket *gws.Conn, _ error) {
	v, ok := socket.Session().Load(sessionConnKey)
	if !ok {
		return
	}
	cs := v.(*connState)
	close(cs.done)
	h.srv.store.Unsubscribe(cs.docID, cs.sub.ID)
}

func (h *handler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		h.srv.logger.Debug("pong failed", "error", err)
	}
}

func (h *handler) OnPong(*gws.Conn, []byte) {}

func (h *handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	v, ok := socket.Session().Load(sessionConnKey)
	if !ok {
		return
	}
	cs := v.(*connState)

	m, err := op.Decode(message.Bytes())
	if err != nil {
		// Malformed frames are discarded; they never crash or
		// desynchronize the channel.
		h.srv.logger.Debug("discarding malformed frame", "doc", cs.docID, "error", err)
		return
	}

	switch edit := m.(type) {
	case *op.DirectEdit:
		if err := h.srv.store.DirectEdit(cs.docID, edit); err != nil {
			// Rejections go to the requester only; no other
			// connection hears about them.
			h.sendDirectEditError(socket, err)
		}
	case *op.SnapshotStart, *op.SnapshotEnd, *op.DirectEditError,
		*op.MetaUpdate, *op.StyleSet, *op.StyleEntity,
		*op.Voice, *op.StreamStart, *op.StreamEnd:
		// Only the producer side may originate these; from an
		// untrusted connection they are discarded.
		h.srv.logger.Debug("discarding server-only frame from client",
			"doc", cs.docID, "op", m.Kind())
	default:
		// Entity and rel operations run through the same validator as
		// the producer's; invalid ones are dropped inside Commit.
		_ = h.srv.store.Commit(cs.docID, m)
	}
}

func (h *handler) sendDirectEditError(socket *gws.Conn, cause error) {
	frame, err := op.Encode(&op.DirectEditError{Error: cause.Error()})
	if err != nil {
		h.srv.logger.Error("encoding direct_edit.error failed", "error", err)
		return
	}
	if err := socket.WriteMessage(gws.OpcodeText, frame); err != nil {
		h.srv.logger.Debug("direct_edit.error write failed", "error", err)
	}
}
