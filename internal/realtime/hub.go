package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const sessionBuffer = 32

// Event is a push message for one user.
type Event struct {
	Type    string      `json:"type"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	At      time.Time   `json:"at"`
}

// Session is one connected client of a user.
type Session struct {
	ID     string
	UserID uint
	events chan Event
}

func (s *Session) Events() <-chan Event {
	return s.events
}

// Hub is the registry of live sessions keyed by user id.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uint]map[string]*Session
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[uint]map[string]*Session)}
}

func (h *Hub) Register(userID uint) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		events: make(chan Event, sessionBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[string]*Session)
	}
	h.sessions[userID][s.ID] = s
	return s
}

// Unregister removes the session and closes its channel. Safe to call twice.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byID, ok := h.sessions[s.UserID]
	if !ok {
		return
	}
	if _, ok := byID[s.ID]; !ok {
		return
	}
	delete(byID, s.ID)
	close(s.events)
	if len(byID) == 0 {
		delete(h.sessions, s.UserID)
	}
}

// Push fans ev out to every session of the user and returns how many took it.
// Slow sessions with a full buffer miss the event.
func (h *Hub) Push(userID uint, ev Event) int {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, s := range h.sessions[userID] {
		select {
		case s.events <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *Hub) Sessions(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}
