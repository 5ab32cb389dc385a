package dispatch

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is the wire form of a geofence transition pushed to dashboards.
type Event struct {
	LoadID       string    `json:"load_id"`
	Reference    string    `json:"reference_number,omitempty"`
	Kind         string    `json:"event"`
	FacilityID   string    `json:"facility_id,omitempty"`
	FacilityName string    `json:"facility_name,omitempty"`
	Status       string    `json:"status"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// WSSession represents one connected dashboard client.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// WSRegistry holds dashboard sessions and fans transition events out to
// every connected client.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(clientID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[clientID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, clientID)
}

// Broadcast is best effort; a dead session is dropped so one stale
// dashboard cannot wedge the feed.
func (r *WSRegistry) Broadcast(ev Event) {
	r.mu.RLock()
	sessions := make(map[string]*WSSession, len(r.sessions))
	for id, s := range r.sessions {
		sessions[id] = s
	}
	r.mu.RUnlock()

	for id, s := range sessions {
		if err := s.Send(ev); err != nil {
			r.Remove(id)
		}
	}
}
