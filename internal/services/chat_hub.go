package services

import (
	"sync"

	"github.com/zackyviriot/study-buddy-backend/internal/models"
)

// ChatHub is the in-memory room registry: which sessions are joined to which
// rooms. It exists purely for broadcast fan-out; it is not an authorization
// record. Membership in the underlying team or study group is decided
// elsewhere and trusted here.
type ChatHub struct {
	mu sync.RWMutex
	// rooms maps a room key to the set of member sessions.
	rooms map[models.RoomKey]map[*Session]struct{}
	// joined maps a session back to its rooms so Purge doesn't scan.
	joined map[*Session]map[models.RoomKey]struct{}
}

func NewChatHub() *ChatHub {
	return &ChatHub{
		rooms:  make(map[models.RoomKey]map[*Session]struct{}),
		joined: make(map[*Session]map[models.RoomKey]struct{}),
	}
}

// Join adds a session to a room. Joining a room the session is already in is
// a no-op.
func (h *ChatHub) Join(s *Session, key models.RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[key]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[key] = members
	}
	members[s] = struct{}{}

	keys, ok := h.joined[s]
	if !ok {
		keys = make(map[models.RoomKey]struct{})
		h.joined[s] = keys
	}
	keys[key] = struct{}{}
}

// Leave removes a session from a room. Leaving a room the session is not in
// is a no-op.
func (h *ChatHub) Leave(s *Session, key models.RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s, key)
}

// MembersOf returns a snapshot of the sessions currently in a room. The
// slice is safe to iterate without holding the hub lock.
func (h *ChatHub) MembersOf(key models.RoomKey) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[key]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(members))
	for s := range members {
		out = append(out, s)
	}
	return out
}

// Purge removes a session from every room it joined. Called once when the
// session closes; afterwards the session is unreachable from any room.
func (h *ChatHub) Purge(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key := range h.joined[s] {
		h.removeLocked(s, key)
	}
	delete(h.joined, s)
}

// RoomCount returns the number of rooms with at least one member.
func (h *ChatHub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *ChatHub) removeLocked(s *Session, key models.RoomKey) {
	if members, ok := h.rooms[key]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, key)
		}
	}
	if keys, ok := h.joined[s]; ok {
		delete(keys, key)
	}
}
