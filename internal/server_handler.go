package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and attaches the connection to the forum's
// room. An optional token query param binds the connection to a session;
// when present, the bound identity overrides whatever user_id later frames
// carry.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	forumID, err := strconv.ParseInt(r.URL.Query().Get("forum"), 10, 64)
	if err != nil {
		http.Error(w, "missing forum query param", http.StatusBadRequest)
		return
	}

	var (
		userID   int64
		username string
		bound    bool
	)
	if token := r.URL.Query().Get("token"); token != "" {
		ctx, err := s.authenticateToken(r, token)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		userID, username, bound = ctx.UserID, ctx.Username, true
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	room := s.hub.GetOrCreate(forumID)
	client := newClient(room, conn, userID, username, bound, func() {
		s.presence.Disconnect(userID, forumID)
		s.metrics.ActiveConnections.Dec()
	})
	room.Join(client)
	s.presence.Connect(userID, forumID)
	s.metrics.ActiveConnections.Inc()

	go client.writePump()
	go s.readPump(client, forumID)
}

// readPump consumes frames from one connection until it closes, then tears
// the client down. The close sequence runs exactly once per connection.
func (s *Server) readPump(client *Client, forumID int64) {
	defer func() {
		client.room.Leave(client)
		client.conn.Close()
		s.hub.RemoveIfEmpty(forumID)
		if client.onDisconnect != nil {
			client.onDisconnect()
		}
	}()
	client.conn.SetReadLimit(maxMsgSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "forum", forumID, "err", err)
			}
			return
		}
		s.handleIncoming(client, forumID, raw)
	}
}

// handleIncoming runs the broadcast pipeline for one inbound frame:
// parse, persist, resolve the author's name, fan out. A frame that fails to
// parse is dropped without touching the connection; a frame that fails to
// persist is answered with an error frame to the sender only.
func (s *Server) handleIncoming(client *Client, forumID int64, raw []byte) {
	var inbound inboundChat
	if err := json.Unmarshal(raw, &inbound); err != nil {
		s.logger.Warn("dropping malformed frame", "forum", forumID, "err", err)
		return
	}
	if strings.TrimSpace(inbound.Content) == "" {
		s.logger.Warn("dropping frame without content", "forum", forumID)
		return
	}
	userID := inbound.UserID
	if client.bound {
		userID = client.userID
	}

	ctx := context.Background()
	msg, err := s.store.CreateMessage(ctx, forumID, userID, inbound.Content, nil, nil, inbound.ReplyTo)
	if err != nil {
		s.logger.Error("persist failed", "forum", forumID, "user", userID, "err", err)
		payload, _ := json.Marshal(errorFrame{Type: "error", Error: "message could not be saved"})
		client.room.SendTo(client, payload)
		return
	}

	username, err := s.store.GetUsername(ctx, userID)
	if err != nil {
		username = inbound.User
	}
	if username == "" {
		username = "anonymous"
	}

	outbound := ChatMessage{
		MessageID: msg.ID,
		ForumID:   forumID,
		UserID:    userID,
		Username:  username,
		Content:   inbound.Content,
		ReplyTo:   inbound.ReplyTo,
		CreatedAt: isoTime(msg.CreatedAt),
	}
	payload, err := json.Marshal(outbound)
	if err != nil {
		s.logger.Error("encode failed", "forum", forumID, "err", err)
		return
	}
	dropped := client.room.Broadcast(payload)
	s.metrics.MessagesBroadcast.Inc()
	if dropped > 0 {
		s.metrics.SlowClientDrops.Add(float64(dropped))
		s.logger.Warn("dropped slow consumers", "forum", forumID, "count", dropped)
	}
}
