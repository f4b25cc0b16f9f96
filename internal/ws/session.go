package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomchat/internal/bus"
	"roomchat/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBufferSize = 256
)

// renderFunc turns a bus message into the frame sent to the client. A false
// result drops the message for this session.
type renderFunc func(bus.Message) ([]byte, bool)

func forward(msg bus.Message) ([]byte, bool) {
	return msg.Data, true
}

// Session owns one websocket connection: a bounded outbound queue drained
// by writePump and a read loop run by the connection handler.
type Session struct {
	kind    string
	conn    *websocket.Conn
	info    ConnInfo
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	evicted atomic.Bool
	render  renderFunc
	log     zerolog.Logger
}

func newSession(kind string, render renderFunc, log zerolog.Logger) *Session {
	if render == nil {
		render = forward
	}
	return &Session{
		kind:   kind,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		render: render,
		log:    log,
	}
}

// attach binds the upgraded connection.
func (s *Session) attach(conn *websocket.Conn, info ConnInfo) {
	s.conn = conn
	s.info = info
}

// Deliver enqueues msg without blocking. A session whose queue is full is
// closed.
func (s *Session) Deliver(msg bus.Message) {
	data, ok := s.render(msg)
	if !ok {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.send <- data:
	default:
		s.evict()
	}
}

func (s *Session) evict() {
	if s.evicted.CompareAndSwap(false, true) {
		observability.IncSlowConsumerEviction(s.kind)
		s.log.Warn().Str("conn_id", s.info.ConnID).Msg("outbound queue full, closing session")
	}
	s.Close()
}

// Evicted reports whether the session was closed for falling behind.
func (s *Session) Evicted() bool {
	return s.evicted.Load()
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops the write loop, which then says goodbye and closes the
// connection. It is safe to call more than once and from any goroutine.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug().Err(err).Str("conn_id", s.info.ConnID).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump hands every inbound frame to handle until the connection fails
// or handle returns an error.
func (s *Session) readPump(handle func([]byte) error) error {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if handle == nil {
			continue
		}
		if err := handle(data); err != nil {
			return err
		}
	}
}
