package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Message represents a row in the messages table.
type Message struct {
	ID        int64
	ForumID   int64
	UserID    int64
	Content   string
	FileURL   *string
	FileType  *string
	ReplyTo   *int64
	CreatedAt time.Time
}

// MessageView is a message joined with its author's name and, when the
// message is a reply, a short preview of the parent.
type MessageView struct {
	Message
	Username     string
	ReplyPreview *ReplyPreview
}

// ReplyPreview summarizes a replied-to message for history listings.
type ReplyPreview struct {
	ID       int64
	Username string
	Content  string
}

// Post represents a profile post.
type Post struct {
	ID        int64
	UserID    int64
	Content   string
	FileURL   *string
	FileType  *string
	CreatedAt time.Time
}

// UserStats aggregates a user's activity for the profile page.
type UserStats struct {
	ForumsCreated int64
	ForumsJoined  int64
	TotalLikes    int64
}

const previewMaxLen = 100

// CreateMessage persists a message and returns its id and creation time.
// The forum must exist, and a reply target must belong to the same forum.
func (s *Store) CreateMessage(ctx context.Context, forumID, userID int64, content string, fileURL, fileType *string, replyTo *int64) (Message, error) {
	exists, err := s.ForumExists(ctx, forumID)
	if err != nil {
		return Message{}, err
	}
	if !exists {
		return Message{}, ErrForumNotFound
	}
	if replyTo != nil {
		var parentForum int64
		err := s.db.QueryRowContext(ctx,
			`SELECT forum_id FROM messages WHERE id = ?`, *replyTo).Scan(&parentForum)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && parentForum != forumID) {
			return Message{}, ErrReplyNotFound
		}
		if err != nil {
			return Message{}, err
		}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages(forum_id, user_id, content, file_url, file_type, reply_to)
		VALUES(?, ?, ?, ?, ?, ?)`,
		forumID, userID, content, fileURL, fileType, replyTo)
	if err != nil {
		if isConstraintError(err) {
			return Message{}, ErrForumNotFound
		}
		return Message{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Message{}, err
	}

	msg := Message{ID: id, ForumID: forumID, UserID: userID, Content: content,
		FileURL: fileURL, FileType: fileType, ReplyTo: replyTo}
	err = s.db.QueryRowContext(ctx,
		`SELECT created_at FROM messages WHERE id = ?`, id).Scan(&msg.CreatedAt)
	return msg, err
}

// ListMessages returns a forum's messages oldest first, each with its
// author's name and a preview of the replied-to message when present.
func (s *Store) ListMessages(ctx context.Context, forumID int64, limit, offset int) ([]MessageView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.forum_id, m.user_id, m.content, m.file_url, m.file_type, m.reply_to, m.created_at,
			u.username,
			p.id, pu.username, p.content
		FROM messages m
		JOIN users u ON u.id = m.user_id
		LEFT JOIN messages p ON p.id = m.reply_to
		LEFT JOIN users pu ON pu.id = p.user_id
		WHERE m.forum_id = ?
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT ? OFFSET ?`, forumID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MessageView
	for rows.Next() {
		var (
			view          MessageView
			parentID      sql.NullInt64
			parentAuthor  sql.NullString
			parentContent sql.NullString
		)
		if err := rows.Scan(&view.ID, &view.ForumID, &view.UserID, &view.Content,
			&view.FileURL, &view.FileType, &view.ReplyTo, &view.CreatedAt,
			&view.Username, &parentID, &parentAuthor, &parentContent); err != nil {
			return nil, err
		}
		if parentID.Valid {
			view.ReplyPreview = &ReplyPreview{
				ID:       parentID.Int64,
				Username: parentAuthor.String,
				Content:  truncatePreview(parentContent.String),
			}
		}
		out = append(out, view)
	}
	return out, rows.Err()
}

func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewMaxLen {
		return content
	}
	return string(runes[:previewMaxLen]) + "..."
}

// GetMessage fetches one message by id.
func (s *Store) GetMessage(ctx context.Context, messageID int64) (Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, forum_id, user_id, content, file_url, file_type, reply_to, created_at
		FROM messages WHERE id = ?`, messageID)
	var m Message
	err := row.Scan(&m.ID, &m.ForumID, &m.UserID, &m.Content, &m.FileURL, &m.FileType, &m.ReplyTo, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, sql.ErrNoRows
	}
	return m, err
}

// DeleteMessage removes a message. Replies to it keep their rows with
// reply_to set to NULL by the schema's foreign key action.
func (s *Store) DeleteMessage(ctx context.Context, messageID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID)
	if err != nil {
		return err
	}
	return requireRow(result, sql.ErrNoRows)
}

// CreatePost stores a profile post.
func (s *Store) CreatePost(ctx context.Context, userID int64, content string, fileURL, fileType *string) (Post, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO posts(user_id, content, file_url, file_type) VALUES(?, ?, ?, ?)`,
		userID, content, fileURL, fileType)
	if err != nil {
		return Post{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Post{}, err
	}
	post := Post{ID: id, UserID: userID, Content: content, FileURL: fileURL, FileType: fileType}
	err = s.db.QueryRowContext(ctx, `SELECT created_at FROM posts WHERE id = ?`, id).Scan(&post.CreatedAt)
	return post, err
}

// ListPosts returns a user's posts, newest first.
func (s *Store) ListPosts(ctx context.Context, userID int64) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, file_url, file_type, created_at
		FROM posts WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.Content, &p.FileURL, &p.FileType, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePost removes a post only when it belongs to the user.
func (s *Store) DeletePost(ctx context.Context, postID, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM posts WHERE id = ? AND user_id = ?`, postID, userID)
	if err != nil {
		return err
	}
	return requireRow(result, sql.ErrNoRows)
}

// GetUserStats aggregates forums created, forums joined, and likes
// received across the user's forums.
func (s *Store) GetUserStats(ctx context.Context, userID int64) (UserStats, error) {
	var stats UserStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(1) FROM forums WHERE created_by = ?),
			(SELECT COUNT(1) FROM memberships WHERE user_id = ?),
			(SELECT COUNT(1) FROM likes l JOIN forums f ON f.id = l.forum_id WHERE f.created_by = ?)`,
		userID, userID, userID).Scan(&stats.ForumsCreated, &stats.ForumsJoined, &stats.TotalLikes)
	return stats, err
}
