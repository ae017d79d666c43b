package internal

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Room is the set of connections subscribed to one forum's live chat.
// Membership changes and broadcasts are guarded by a per-room mutex, so
// traffic in one forum never serializes against another forum's.
type Room struct {
	forumID int64
	mutex   sync.Mutex
	clients map[*Client]bool
}

func newRoom(forumID int64) *Room {
	return &Room{
		forumID: forumID,
		clients: make(map[*Client]bool),
	}
}

func (room *Room) size() int {
	room.mutex.Lock()
	defer room.mutex.Unlock()
	return len(room.clients)
}

// Join adds a connection to the room. Joining twice is a no-op, so a client
// can never receive a broadcast more than once.
func (room *Room) Join(client *Client) {
	room.mutex.Lock()
	defer room.mutex.Unlock()
	room.clients[client] = true
}

// Leave removes a connection and closes its send queue. Safe to call again
// after the client is gone: disconnect paths may race with the slow-consumer
// cleanup in Broadcast, and whichever runs second must be a no-op.
func (room *Room) Leave(client *Client) {
	room.mutex.Lock()
	defer room.mutex.Unlock()
	if _, exists := room.clients[client]; exists {
		delete(room.clients, client)
		close(client.send)
	}
}

// Broadcast queues the payload for every connected client. A client whose
// send buffer is full can't keep up; we close its queue and drop it from the
// room, which makes writePump exit and the read side run its cleanup. One
// stalled peer never blocks delivery to the rest of the room.
func (room *Room) Broadcast(payload []byte) int {
	room.mutex.Lock()
	defer room.mutex.Unlock()
	dropped := 0
	for client := range room.clients {
		select {
		case client.send <- payload:
		default:
			close(client.send)
			delete(room.clients, client)
			dropped++
		}
	}
	return dropped
}

// SendTo queues a payload for one member only (error frames, system
// notices). Checking membership under the room lock keeps this safe against
// a concurrent Leave closing the queue.
func (room *Room) SendTo(client *Client, payload []byte) {
	room.mutex.Lock()
	defer room.mutex.Unlock()
	if !room.clients[client] {
		return
	}
	select {
	case client.send <- payload:
	default:
	}
}

// Client wraps a single websocket connection and a buffered send queue.
// A client belongs to exactly one room for its whole lifetime.
type Client struct {
	room         *Room
	conn         *websocket.Conn
	send         chan []byte
	userID       int64
	username     string
	bound        bool // identity came from a verified session, not the payload
	onDisconnect func()
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 8192
	sendBuffer = 256
)

func newClient(room *Room, conn *websocket.Conn, userID int64, username string, bound bool, onDisconnect func()) *Client {
	return &Client{
		room:         room,
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		userID:       userID,
		username:     username,
		bound:        bound,
		onDisconnect: onDisconnect,
	}
}

func (client *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
