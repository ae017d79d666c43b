package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// Store wraps the SQLite handle and exposes the queries used by the server.
type Store struct {
	db *sql.DB
}

// User represents a row in the users table.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash []byte
	Avatar       string
	Background   string
	Bio          string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session captures persisted logins.
type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

var (
	// ErrUserExists is returned when username or email is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when a user id cannot be resolved.
	ErrUserNotFound = errors.New("user not found")
	// ErrForumNotFound is returned for operations on a nonexistent forum.
	ErrForumNotFound = errors.New("forum not found")
	// ErrReplyNotFound is returned when reply_to does not reference a
	// message in the same forum.
	ErrReplyNotFound = errors.New("replied-to message not found in forum")
	// ErrAlreadyMember is returned on a duplicate join.
	ErrAlreadyMember = errors.New("user already joined this forum")
	// ErrNotMember is returned when leaving a forum the user never joined.
	ErrNotMember = errors.New("user is not a member of this forum")
)

// NewStore initializes the SQLite database at the provided path. Call Close
// when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "forumhub.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash BLOB NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			background TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS forums (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			tag TEXT NOT NULL DEFAULT '',
			caption TEXT NOT NULL DEFAULT '',
			background TEXT NOT NULL DEFAULT '',
			created_by INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(created_by) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS memberships (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			forum_id INTEGER NOT NULL,
			role TEXT NOT NULL DEFAULT 'member' CHECK(role IN ('member','moderator','admin')),
			joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, forum_id),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(forum_id) REFERENCES forums(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			forum_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			file_url TEXT,
			file_type TEXT,
			reply_to INTEGER,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(forum_id) REFERENCES forums(id) ON DELETE CASCADE,
			FOREIGN KEY(reply_to) REFERENCES messages(id) ON DELETE SET NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_forum_created ON messages(forum_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			file_url TEXT,
			file_type TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS likes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			forum_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, forum_id),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(forum_id) REFERENCES forums(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS forum_tags (
			forum_id INTEGER NOT NULL,
			tag_id INTEGER NOT NULL,
			PRIMARY KEY (forum_id, tag_id),
			FOREIGN KEY(forum_id) REFERENCES forums(id) ON DELETE CASCADE,
			FOREIGN KEY(tag_id) REFERENCES tags(id) ON DELETE CASCADE
		);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const userColumns = `id, username, email, password_hash, avatar, background, bio, created_at, updated_at`

// CreateUser inserts a new user. ErrUserExists is returned on conflicts.
func (s *Store) CreateUser(ctx context.Context, username, email string, passwordHash []byte) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users(username, email, password_hash) VALUES(?, ?, ?)`,
		username, email, passwordHash)
	if err != nil {
		if isConstraintError(err) {
			return 0, ErrUserExists
		}
		return 0, err
	}
	return result.LastInsertId()
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Avatar, &user.Background, &user.Bio, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername fetches a user by username. Returns (nil, nil) when absent.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// GetUserByID fetches a user by primary key. Returns (nil, nil) when absent.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUsername resolves the display name for a user id.
func (s *Store) GetUsername(ctx context.Context, id int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT username FROM users WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	return name, err
}

// UpdatePassword replaces the stored password hash for a user.
func (s *Store) UpdatePassword(ctx context.Context, userID int64, newHash []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, newHash, userID)
	return err
}

// UpdateAvatar stores the avatar path for a user.
func (s *Store) UpdateAvatar(ctx context.Context, userID int64, avatar string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET avatar=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, avatar, userID)
	return err
}

// UpdateProfile updates the mutable profile fields that are non-empty.
func (s *Store) UpdateProfile(ctx context.Context, userID int64, bio, background string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET
			bio = CASE WHEN ? != '' THEN ? ELSE bio END,
			background = CASE WHEN ? != '' THEN ? ELSE background END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		bio, bio, background, background, userID)
	return err
}

// CreateSession stores a new session token for a user.
func (s *Store) CreateSession(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(token, user_id, expires_at) VALUES(?, ?, ?)`,
		token, userID, expiresAt.UTC())
	return err
}

// GetSession returns a session if it exists. Returns (nil, nil) when absent.
func (s *Store) GetSession(ctx context.Context, token string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`, token)
	var sess Session
	if err := row.Scan(&sess.Token, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session token (used for logout).
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// DeleteExpiredSessions prunes sessions past their expiry.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.UTC())
	return err
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// Code() carries the extended result code (e.g. 2067 for a UNIQUE
		// violation); the low byte is the primary SQLITE_CONSTRAINT code.
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}
