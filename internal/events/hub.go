package events

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/domain"
)

const writeWait = 5 * time.Second

type wsConn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type session struct {
	conn wsConn
	mu   sync.Mutex
}

func (s *session) send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// Hub pushes ride events to websocket subscribers of that ride.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*session]struct{}
	log      logrus.FieldLogger
}

// NewHub creates an empty Hub.
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{sessions: make(map[string]map[*session]struct{}), log: log}
}

// Subscribe registers conn for rideID events and returns the function that
// removes it again.
func (h *Hub) Subscribe(rideID string, conn *websocket.Conn) func() {
	return h.subscribe(rideID, conn)
}

func (h *Hub) subscribe(rideID string, conn wsConn) func() {
	s := &session{conn: conn}

	h.mu.Lock()
	if h.sessions[rideID] == nil {
		h.sessions[rideID] = make(map[*session]struct{})
	}
	h.sessions[rideID][s] = struct{}{}
	h.mu.Unlock()

	return func() { h.remove(rideID, s) }
}

func (h *Hub) remove(rideID string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.sessions[rideID]; ok {
		if _, ok := subs[s]; ok {
			delete(subs, s)
			_ = s.conn.Close()
		}
		if len(subs) == 0 {
			delete(h.sessions, rideID)
		}
	}
}

// Subscribers returns the number of open sessions for rideID.
func (h *Hub) Subscribers(rideID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[rideID])
}

// Publish sends the event to every session of its ride. Sessions that fail
// to receive are dropped; a dead subscriber is not a delivery failure.
func (h *Hub) Publish(ctx context.Context, event domain.RideEvent) error {
	h.mu.RLock()
	subs := make([]*session, 0, len(h.sessions[event.RideID]))
	for s := range h.sessions[event.RideID] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	msg := NewMessage(event)
	for _, s := range subs {
		if err := s.send(msg); err != nil {
			h.log.WithField("ride_id", event.RideID).WithError(err).Debug("dropping websocket subscriber")
			h.remove(event.RideID, s)
		}
	}
	return nil
}
