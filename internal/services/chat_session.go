package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChatConn is the minimal transport surface a session needs. Satisfied by
// *websocket.Conn; mocked in tests.
type ChatConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	SetReadDeadline(t time.Time) error
	Close() error
}

type sessionState int

const (
	stateConnecting sessionState = iota
	stateAuthenticated
	stateClosed
)

// sessionSendBuffer bounds the per-connection outbound queue. A member that
// cannot drain it fast enough is disconnected rather than allowed to stall
// fan-out for the rest of the room.
const sessionSendBuffer = 256

// Session owns one live websocket connection. The identity is bound exactly
// once, after credential verification; until then every event is rejected.
type Session struct {
	ID   string
	conn ChatConn

	mu     sync.RWMutex
	state  sessionState
	userID string

	out       chan *ServerPacket
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(conn ChatConn) *Session {
	return &Session{
		ID:   uuid.New().String(),
		conn: conn,
		out:  make(chan *ServerPacket, sessionSendBuffer),
		done: make(chan struct{}),
	}
}

// Authenticate binds the verified identity and moves the session to the
// authenticated state. Returns false if the session is not in the connecting
// state (identity is set at most once).
func (s *Session) Authenticate(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateConnecting {
		return false
	}
	s.state = stateAuthenticated
	s.userID = userID
	return true
}

// Authenticated reports whether credential verification has completed.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateAuthenticated
}

// UserID returns the bound identity, or "" before authentication.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Send queues a packet for delivery. Never blocks: if the session's buffer
// is full the session is closed instead.
func (s *Session) Send(p *ServerPacket) {
	select {
	case <-s.done:
	case s.out <- p:
	default:
		s.Close()
	}
}

// Close terminates the session. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()
		close(s.done)
		s.conn.Close()
	})
}

// Done is closed when the session terminates.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// writeLoop is the single writer on the underlying connection.
func (s *Session) writeLoop() {
	for {
		select {
		case p := <-s.out:
			if err := s.conn.WriteJSON(p); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
