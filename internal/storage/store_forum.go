package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Membership roles, ordered by privilege.
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Forum represents a row in the forums table.
type Forum struct {
	ID         int64
	Name       string
	Tag        string
	Caption    string
	Background string
	CreatedBy  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ForumSummary is a forum plus the aggregates the listing pages show.
type ForumSummary struct {
	Forum
	MemberCount int64
	LikeCount   int64
}

// Membership represents a user's membership in one forum.
type Membership struct {
	ID       int64
	UserID   int64
	ForumID  int64
	Role     string
	JoinedAt time.Time
}

// ForumMember is a membership joined with the member's display name.
type ForumMember struct {
	UserID   int64
	Username string
	Role     string
	JoinedAt time.Time
}

// TagCount is one row of the top-tags aggregation.
type TagCount struct {
	Name  string
	Count int64
}

const forumColumns = `id, name, tag, caption, background, created_by, created_at, updated_at`

func scanForum(scanner interface{ Scan(...any) error }) (Forum, error) {
	var f Forum
	err := scanner.Scan(&f.ID, &f.Name, &f.Tag, &f.Caption, &f.Background,
		&f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

// CreateForum inserts a forum, makes the creator its admin, and records the
// forum's tag in the tag tables, all in one transaction.
func (s *Store) CreateForum(ctx context.Context, name, tag, caption, background string, createdBy int64) (Forum, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Forum{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var result sql.Result
	result, err = tx.ExecContext(ctx,
		`INSERT INTO forums(name, tag, caption, background, created_by) VALUES(?, ?, ?, ?, ?)`,
		name, tag, caption, background, createdBy)
	if err != nil {
		return Forum{}, err
	}
	forumID, err := result.LastInsertId()
	if err != nil {
		return Forum{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO memberships(user_id, forum_id, role) VALUES(?, ?, ?)`,
		createdBy, forumID, RoleAdmin); err != nil {
		return Forum{}, err
	}

	if err = linkForumTag(ctx, tx, forumID, tag); err != nil {
		return Forum{}, err
	}

	row := tx.QueryRowContext(ctx, `SELECT `+forumColumns+` FROM forums WHERE id = ?`, forumID)
	var forum Forum
	if forum, err = scanForum(row); err != nil {
		return Forum{}, err
	}
	if err = tx.Commit(); err != nil {
		return Forum{}, err
	}
	return forum, nil
}

func linkForumTag(ctx context.Context, tx *sql.Tx, forumID int64, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags(name) VALUES(?)`, tag); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO forum_tags(forum_id, tag_id)
		SELECT ?, id FROM tags WHERE name = ?`, forumID, tag)
	return err
}

// GetForum fetches a forum by id.
func (s *Store) GetForum(ctx context.Context, forumID int64) (Forum, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+forumColumns+` FROM forums WHERE id = ?`, forumID)
	forum, err := scanForum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Forum{}, ErrForumNotFound
	}
	return forum, err
}

// ForumExists reports whether a forum id is present.
func (s *Store) ForumExists(ctx context.Context, forumID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM forums WHERE id = ?`, forumID).Scan(&count)
	return count > 0, err
}

// ListForumsPage returns one page of forums, newest first, with member and
// like counts aggregated per forum, plus the total forum count.
func (s *Store) ListForumsPage(ctx context.Context, limit, offset int) ([]ForumSummary, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.name, f.tag, f.caption, f.background, f.created_by, f.created_at, f.updated_at,
			COUNT(DISTINCT m.user_id) AS member_count,
			COUNT(DISTINCT l.id) AS like_count
		FROM forums f
		LEFT JOIN memberships m ON m.forum_id = f.id
		LEFT JOIN likes l ON l.forum_id = f.id
		GROUP BY f.id
		ORDER BY f.created_at DESC, f.id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []ForumSummary
	for rows.Next() {
		var fs ForumSummary
		if err := rows.Scan(&fs.ID, &fs.Name, &fs.Tag, &fs.Caption, &fs.Background,
			&fs.CreatedBy, &fs.CreatedAt, &fs.UpdatedAt, &fs.MemberCount, &fs.LikeCount); err != nil {
			return nil, 0, err
		}
		out = append(out, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM forums`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListTrendingForums ranks forums by member count, then like count.
func (s *Store) ListTrendingForums(ctx context.Context, limit int) ([]ForumSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.name, f.tag, f.caption, f.background, f.created_by, f.created_at, f.updated_at,
			COUNT(DISTINCT m.user_id) AS member_count,
			COUNT(DISTINCT l.id) AS like_count
		FROM forums f
		LEFT JOIN memberships m ON m.forum_id = f.id
		LEFT JOIN likes l ON l.forum_id = f.id
		GROUP BY f.id
		ORDER BY member_count DESC, like_count DESC, f.id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ForumSummary
	for rows.Next() {
		var fs ForumSummary
		if err := rows.Scan(&fs.ID, &fs.Name, &fs.Tag, &fs.Caption, &fs.Background,
			&fs.CreatedBy, &fs.CreatedAt, &fs.UpdatedAt, &fs.MemberCount, &fs.LikeCount); err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// SearchForums matches the keyword against name, tag, and caption.
func (s *Store) SearchForums(ctx context.Context, keyword string) ([]Forum, error) {
	pattern := "%" + keyword + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+forumColumns+` FROM forums
		WHERE name LIKE ? OR tag LIKE ? OR caption LIKE ?
		ORDER BY created_at DESC`, pattern, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectForums(rows)
}

// ListJoinedForums returns the forums a user is a member of.
func (s *Store) ListJoinedForums(ctx context.Context, userID int64) ([]Forum, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.name, f.tag, f.caption, f.background, f.created_by, f.created_at, f.updated_at
		FROM forums f
		JOIN memberships m ON m.forum_id = f.id
		WHERE m.user_id = ?
		ORDER BY m.joined_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectForums(rows)
}

// ListCreatedForums returns the forums a user created.
func (s *Store) ListCreatedForums(ctx context.Context, userID int64) ([]Forum, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+forumColumns+` FROM forums WHERE created_by = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectForums(rows)
}

func collectForums(rows *sql.Rows) ([]Forum, error) {
	var out []Forum
	for rows.Next() {
		forum, err := scanForum(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, forum)
	}
	return out, rows.Err()
}

// UpdateForum updates the fields that are non-empty.
func (s *Store) UpdateForum(ctx context.Context, forumID int64, name, tag, caption string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE forums SET
			name = CASE WHEN ? != '' THEN ? ELSE name END,
			tag = CASE WHEN ? != '' THEN ? ELSE tag END,
			caption = CASE WHEN ? != '' THEN ? ELSE caption END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		name, name, tag, tag, caption, caption, forumID)
	if err != nil {
		return err
	}
	return requireRow(result, ErrForumNotFound)
}

// UpdateForumBackground replaces the stored background image path.
func (s *Store) UpdateForumBackground(ctx context.Context, forumID int64, background string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE forums SET background=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, background, forumID)
	if err != nil {
		return err
	}
	return requireRow(result, ErrForumNotFound)
}

// DeleteForum removes a forum; memberships, messages, and likes cascade.
func (s *Store) DeleteForum(ctx context.Context, forumID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM forums WHERE id = ?`, forumID)
	if err != nil {
		return err
	}
	return requireRow(result, ErrForumNotFound)
}

// ListForumMembers returns every member of a forum with their role.
func (s *Store) ListForumMembers(ctx context.Context, forumID int64) ([]ForumMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, m.role, m.joined_at
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.forum_id = ?
		ORDER BY m.joined_at ASC`, forumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []ForumMember
	for rows.Next() {
		var member ForumMember
		if err := rows.Scan(&member.UserID, &member.Username, &member.Role, &member.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// JoinForum adds a user to a forum with the given role.
func (s *Store) JoinForum(ctx context.Context, userID, forumID int64, role string) (Membership, error) {
	if role == "" {
		role = RoleMember
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships(user_id, forum_id, role) VALUES(?, ?, ?)`,
		userID, forumID, role)
	if err != nil {
		if isConstraintError(err) {
			// Distinguish a duplicate join from a missing forum.
			if exists, checkErr := s.ForumExists(ctx, forumID); checkErr == nil && !exists {
				return Membership{}, ErrForumNotFound
			}
			return Membership{}, ErrAlreadyMember
		}
		return Membership{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Membership{}, err
	}
	return s.getMembershipByID(ctx, id)
}

func (s *Store) getMembershipByID(ctx context.Context, id int64) (Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, forum_id, role, joined_at FROM memberships WHERE id = ?`, id)
	var m Membership
	err := row.Scan(&m.ID, &m.UserID, &m.ForumID, &m.Role, &m.JoinedAt)
	return m, err
}

// GetMembership returns a user's membership in a forum, or ErrNotMember.
func (s *Store) GetMembership(ctx context.Context, userID, forumID int64) (Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, forum_id, role, joined_at FROM memberships WHERE user_id = ? AND forum_id = ?`,
		userID, forumID)
	var m Membership
	err := row.Scan(&m.ID, &m.UserID, &m.ForumID, &m.Role, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Membership{}, ErrNotMember
	}
	return m, err
}

// ListMembershipsByUser returns every membership a user holds.
func (s *Store) ListMembershipsByUser(ctx context.Context, userID int64) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, forum_id, role, joined_at FROM memberships WHERE user_id = ? ORDER BY joined_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.ForumID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LeaveForum removes a user's membership.
func (s *Store) LeaveForum(ctx context.Context, userID, forumID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE user_id = ? AND forum_id = ?`, userID, forumID)
	if err != nil {
		return err
	}
	return requireRow(result, ErrNotMember)
}

// LikeForum records a like; liking twice is a no-op.
func (s *Store) LikeForum(ctx context.Context, userID, forumID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO likes(user_id, forum_id) VALUES(?, ?)`, userID, forumID)
	if err != nil && isConstraintError(err) {
		return ErrForumNotFound
	}
	return err
}

// UnlikeForum removes a like; removing an absent like is a no-op.
func (s *Store) UnlikeForum(ctx context.Context, userID, forumID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = ? AND forum_id = ?`, userID, forumID)
	return err
}

// CountForumLikes returns the number of likes on a forum.
func (s *Store) CountForumLikes(ctx context.Context, forumID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM likes WHERE forum_id = ?`, forumID).Scan(&count)
	return count, err
}

// TopTags returns the most-used tags, most popular first.
func (s *Store) TopTags(ctx context.Context, limit int) ([]TagCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(ft.forum_id) AS usage_count
		FROM tags t
		JOIN forum_tags ft ON ft.tag_id = t.id
		GROUP BY t.id
		ORDER BY usage_count DESC, t.name ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func requireRow(result sql.Result, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return missing
	}
	return nil
}
