package events

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// WSSubscriber adapts a websocket connection to the Subscriber contract.
// Writes are serialized; the first failed write marks the subscriber dead.
type WSSubscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
	dead bool
}

var _ Subscriber = (*WSSubscriber)(nil)

// NewWSSubscriber wraps an upgraded websocket connection.
func NewWSSubscriber(conn *websocket.Conn) *WSSubscriber {
	return &WSSubscriber{conn: conn}
}

// Send implements Subscriber.
func (s *WSSubscriber) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return websocket.ErrCloseSent
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		s.dead = true
		return err
	}
	if err := s.conn.WriteJSON(v); err != nil {
		s.dead = true
		return err
	}
	return nil
}

// Ping sends a ping control frame, sharing the write lock with Send.
func (s *WSSubscriber) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return websocket.ErrCloseSent
	}
	if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
		s.dead = true
		return err
	}
	return nil
}

// Alive implements Subscriber.
func (s *WSSubscriber) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.dead
}

// Close marks the subscriber dead and closes the connection.
func (s *WSSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = true
	return s.conn.Close()
}
