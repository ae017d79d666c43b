package internal

import "sync"

// Presence tracks which users currently hold websocket connections and
// how many viewers each forum's chat has.
type Presence struct {
	mu     sync.Mutex
	online map[int64]int
	forums map[int64]int
}

func NewPresence() *Presence {
	return &Presence{
		online: make(map[int64]int),
		forums: make(map[int64]int),
	}
}

// Connect records a connection for a user viewing a forum.
func (p *Presence) Connect(userID, forumID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID]++
	p.forums[forumID]++
}

// Disconnect records a connection closing.
func (p *Presence) Disconnect(userID, forumID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	decrement(p.online, userID)
	decrement(p.forums, forumID)
}

func decrement(counts map[int64]int, key int64) {
	if count, ok := counts[key]; ok {
		if count <= 1 {
			delete(counts, key)
			return
		}
		counts[key] = count - 1
	}
}

// Online reports whether a user has at least one open connection.
func (p *Presence) Online(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID] > 0
}

// ForumViewers returns the number of open connections on a forum's chat.
func (p *Presence) ForumViewers(forumID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.forums[forumID]
}

// OnlineUsers returns how many distinct users are connected.
func (p *Presence) OnlineUsers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.online)
}
