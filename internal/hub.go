package internal

import "sync"

// Hub tracks the live chat room for every forum with at least one open
// connection. It is constructed per server instance and injected where
// needed; nothing in this package holds a global hub.
type Hub struct {
	mutex sync.RWMutex
	rooms map[int64]*Room
}

// NewHub builds an empty hub ready to serve websocket requests.
func NewHub() *Hub {
	return &Hub{rooms: make(map[int64]*Room)}
}

// Exists reports whether a forum currently has a live room. Used by the
// lightweight /exists probe; it never creates a room.
func (hub *Hub) Exists(forumID int64) bool {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	_, ok := hub.rooms[forumID]
	return ok
}

// GetOrCreate ensures there is a live Room for the given forum.
func (hub *Hub) GetOrCreate(forumID int64) *Room {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if room, exists := hub.rooms[forumID]; exists {
		return room
	}
	room := newRoom(forumID)
	hub.rooms[forumID] = room
	return room
}

// Get retrieves a room without creating it (may return nil).
func (hub *Hub) Get(forumID int64) *Room {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return hub.rooms[forumID]
}

// RemoveIfEmpty prunes the room entry once its last member left. Rooms are
// created implicitly on first connection, so dropping an empty one is purely
// a memory concern, never a correctness one.
func (hub *Hub) RemoveIfEmpty(forumID int64) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if room, exists := hub.rooms[forumID]; exists {
		if room.size() == 0 {
			delete(hub.rooms, forumID)
		}
	}
}

// Broadcast delivers a payload to every connection in the forum's room, if
// one exists. Returns the number of slow consumers that were dropped.
func (hub *Hub) Broadcast(forumID int64, payload []byte) int {
	room := hub.Get(forumID)
	if room == nil {
		return 0
	}
	return room.Broadcast(payload)
}
