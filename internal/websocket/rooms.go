package websocket

import (
	"fmt"
	"sync"
)

// RoomKey derives the conversation room name from an unordered participant
// pair. Both sides compute the same key independently.
func RoomKey(a, b uint) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("chat_%d_%d", a, b)
}

// RoomRouter tracks conversation room membership. Membership is keyed by user
// ID since each user has at most one live connection; a user may belong to
// many rooms at once.
type RoomRouter struct {
	mu    sync.RWMutex
	rooms map[string]map[uint]struct{}
}

func NewRoomRouter() *RoomRouter {
	return &RoomRouter{rooms: make(map[string]map[uint]struct{})}
}

// Join adds the user to the room. Re-joining is a no-op.
func (r *RoomRouter) Join(userID uint, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[uint]struct{})
		r.rooms[room] = members
	}
	members[userID] = struct{}{}
}

// Leave removes the user from the room. Idempotent; empty rooms are dropped.
func (r *RoomRouter) Leave(userID uint, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[room]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// LeaveAll removes the user from every room it belongs to.
func (r *RoomRouter) LeaveAll(userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room, members := range r.rooms {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

func (r *RoomRouter) Members(room string) []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]uint, 0, len(r.rooms[room]))
	for userID := range r.rooms[room] {
		members = append(members, userID)
	}
	return members
}

func (r *RoomRouter) Contains(room string, userID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][userID]
	return ok
}
