package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keycast/keycast/internal/broadcast"
	"github.com/keycast/keycast/internal/registry"
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// SessionState is the lifecycle of one connection.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type SessionOptions struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (o SessionOptions) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// session relays one client's inbound frames into the dispatcher and
// drains the dispatcher's outbound frames to the socket. It implements
// registry.Conn.
type session struct {
	id     string
	remote string
	conn   *websocket.Conn
	reg    *registry.Registry
	pub    broadcast.Publisher
	opts   SessionOptions

	send   chan outbound
	done   chan struct{} // closed when teardown starts
	closed chan struct{} // closed when the socket is gone
	once   sync.Once
	state  atomic.Int32
}

type outbound struct {
	typ  int
	data []byte
}

func newSession(id, remote string, conn *websocket.Conn, reg *registry.Registry, pub broadcast.Publisher, opts SessionOptions) *session {
	return &session{
		id:     id,
		remote: remote,
		conn:   conn,
		reg:    reg,
		pub:    pub,
		opts:   opts,
		send:   make(chan outbound, opts.SendBuffer),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (s *session) ID() string { return s.id }

func (s *session) State() SessionState {
	return SessionState(s.state.Load())
}

// Send queues data as a text frame without blocking.
func (s *session) Send(data []byte) error {
	return s.enqueue(websocket.TextMessage, data)
}

// SendBinary queues data as a binary frame without blocking.
func (s *session) SendBinary(data []byte) error {
	return s.enqueue(websocket.BinaryMessage, data)
}

func (s *session) enqueue(typ int, data []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.send <- outbound{typ: typ, data: data}:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

func (s *session) Close() error {
	s.closeWith(websocket.CloseNormalClosure, "")
	return nil
}

// start registers the session and launches its pumps. ctx is used for
// broadcasts of inbound client frames.
func (s *session) start(ctx context.Context) {
	s.state.Store(int32(StateOpen))
	s.reg.Add(s)
	go s.writePump()
	go s.readPump(ctx)
}

// closeWith tears the session down exactly once, whichever path gets here
// first: read error, write error, failed broadcast send or shutdown. The
// session leaves the registry before closeWith returns. It never waits on
// the socket: the close frame and socket close run in teardown, which
// closes s.closed when done.
func (s *session) closeWith(code int, text string) {
	s.once.Do(func() {
		s.state.Store(int32(StateClosing))
		s.reg.Remove(s.id)
		close(s.done)
		go s.teardown(code, text)
	})
}

func (s *session) teardown(code int, text string) {
	defer close(s.closed)

	deadline := time.Now().Add(s.opts.WriteWait)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	s.conn.Close()

	s.state.Store(int32(StateClosed))
	slog.Info("client disconnected", "clientId", s.id, "remote", s.remote, "clients", s.reg.Len())
}

func (s *session) readPump(ctx context.Context) {
	defer s.Close()

	s.conn.SetReadLimit(s.opts.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		return nil
	})

	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("ws read error", "clientId", s.id, "error", err)
			}
			return
		}

		s.pub.Broadcast(ctx, broadcast.Message{
			Origin:  broadcast.OriginClient,
			Payload: string(data),
			Sender:  s.id,
			Binary:  typ == websocket.BinaryMessage,
		})
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(s.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(msg.typ, msg.data); err != nil {
				slog.Debug("ws write error", "clientId", s.id, "error", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
