package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pixelwall/gateway-server-go/internal/config"
)

const (
	writeWait = 10 * time.Second
)

// Session is one live client connection. It is owned exclusively by the
// instance that accepted it and is never serialized to the relay bus.
type Session struct {
	ID          string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	// alive is the liveness flag: cleared before each probe, set again when
	// the transport reports the probe was answered.
	alive atomic.Bool

	mu          sync.RWMutex
	displayName string
}

// New creates a session over conn. conn may be nil in tests; Probe and
// WritePump are no-ops without a transport.
func New(id string, conn *websocket.Conn) *Session {
	s := &Session{
		ID:          id,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, config.SessionSendBuffer),
		closed:      make(chan struct{}),
	}
	s.alive.Store(true)
	if conn != nil {
		conn.SetPongHandler(func(string) error {
			s.alive.Store(true)
			return nil
		})
	}
	return s
}

func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

func (s *Session) SetDisplayName(name string) {
	s.mu.Lock()
	s.displayName = name
	s.mu.Unlock()
}

// Send enqueues one outbound frame without blocking. Frames are dropped when
// the buffer is full or the session is closed; a slow client never stalls a
// broadcast.
func (s *Session) Send(payload []byte) bool {
	if payload == nil {
		return false
	}
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		log.Warn().Str("sessionId", s.ID).Msg("session send buffer full, dropping frame")
		return false
	}
}

// Close marks the session closed and tears down the transport. Safe to call
// more than once and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

func (s *Session) IsOpen() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

// Alive reports whether the last liveness probe was answered.
func (s *Session) Alive() bool {
	return s.alive.Load()
}

// ClearAlive resets the liveness flag ahead of a new probe.
func (s *Session) ClearAlive() {
	s.alive.Store(false)
}

// MarkAlive records that the client answered a probe.
func (s *Session) MarkAlive() {
	s.alive.Store(true)
}

// Probe sends a transport-level ping. The pong handler set in New marks the
// session alive when the client answers.
func (s *Session) Probe() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// WritePump drains the send buffer to the socket until the session closes or
// a write fails. A write failure is an implicit disconnect; the caller's read
// loop observes the closed connection and unwinds.
func (s *Session) WritePump() {
	if s.conn == nil {
		return
	}
	defer s.conn.Close()
	for {
		select {
		case <-s.closed:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.Close()
				return
			}
		}
	}
}

// Drain returns up to n buffered outbound frames without blocking. Test
// helper for sessions created without a transport.
func (s *Session) Drain(n int) [][]byte {
	frames := make([][]byte, 0, n)
	for len(frames) < n {
		select {
		case payload := <-s.send:
			frames = append(frames, payload)
		default:
			return frames
		}
	}
	return frames
}
