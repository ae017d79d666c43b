package internal

import "time"

// ChatMessage is the canonical shape fanned out to every member of a forum
// room, and also what the history endpoint returns per row. MessageID and
// CreatedAt are assigned by the store and never change afterwards.
type ChatMessage struct {
	MessageID    int64         `json:"message_id"`
	ForumID      int64         `json:"forum_id"`
	UserID       int64         `json:"user_id"`
	Username     string        `json:"username"`
	Content      string        `json:"content"`
	FileURL      *string       `json:"file_url"`
	FileType     *string       `json:"file_type"`
	ReplyTo      *int64        `json:"reply_to"`
	ReplyPreview *ReplyPreview `json:"reply_preview,omitempty"`
	CreatedAt    string        `json:"created_at"`
}

// ReplyPreview is a truncated view of the message being replied to.
type ReplyPreview struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Content  string `json:"content"`
}

// inboundChat is what a client sends over the socket. UserID is trusted as-is
// unless the connection was opened with a valid session token, in which case
// the bound identity wins.
type inboundChat struct {
	UserID  int64  `json:"user_id"`
	User    string `json:"user"`
	Content string `json:"content"`
	ReplyTo *int64 `json:"reply_to"`
}

// errorFrame is sent back to the sender only, when its message failed to
// persist.
type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
