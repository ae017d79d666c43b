package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "sqlite://file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func mustCreateUser(t *testing.T, store *Store, username string) int64 {
	t.Helper()
	id, err := store.CreateUser(context.Background(), username, username+"@example.com", []byte("hash"))
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return id
}

func mustCreateForum(t *testing.T, store *Store, name, tag string, creator int64) Forum {
	t.Helper()
	forum, err := store.CreateForum(context.Background(), name, tag, "caption", "", creator)
	if err != nil {
		t.Fatalf("CreateForum(%s): %v", name, err)
	}
	return forum
}

func TestUserLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateUser(ctx, "alice", "alice@example.com", []byte("hash"))
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected id > 0")
	}
	if _, err := store.CreateUser(ctx, "alice", "other@example.com", []byte("hash2")); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if _, err := store.CreateUser(ctx, "alice2", "alice@example.com", []byte("hash2")); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists for duplicate email, got %v", err)
	}

	user, err := store.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil || user.Username != "alice" || user.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}

	name, err := store.GetUsername(ctx, id)
	if err != nil || name != "alice" {
		t.Fatalf("GetUsername: %q, %v", name, err)
	}
	if _, err := store.GetUsername(ctx, 9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := mustCreateUser(t, store, "bob")

	exp := time.Now().Add(time.Hour)
	if err := store.CreateSession(ctx, userID, "token123", exp); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	session, err := store.GetSession(ctx, "token123")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session == nil || session.UserID != userID {
		t.Fatalf("unexpected session: %+v", session)
	}
	if err := store.DeleteSession(ctx, "token123"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	session, err = store.GetSession(ctx, "token123")
	if err != nil {
		t.Fatalf("GetSession after delete: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session after delete, got %+v", session)
	}
}

func TestCreateForumMakesCreatorAdmin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := mustCreateUser(t, store, "carol")
	forum := mustCreateForum(t, store, "golang", "go", userID)

	membership, err := store.GetMembership(ctx, userID, forum.ID)
	if err != nil {
		t.Fatalf("GetMembership: %v", err)
	}
	if membership.Role != RoleAdmin {
		t.Fatalf("expected creator role %q, got %q", RoleAdmin, membership.Role)
	}
}

func TestMembershipJoinLeave(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	creator := mustCreateUser(t, store, "dave")
	member := mustCreateUser(t, store, "erin")
	forum := mustCreateForum(t, store, "books", "reading", creator)

	membership, err := store.JoinForum(ctx, member, forum.ID, RoleMember)
	if err != nil {
		t.Fatalf("JoinForum: %v", err)
	}
	if membership.Role != RoleMember {
		t.Fatalf("unexpected role: %q", membership.Role)
	}
	if _, err := store.JoinForum(ctx, member, forum.ID, RoleMember); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
	if _, err := store.JoinForum(ctx, member, 9999, RoleMember); !errors.Is(err, ErrForumNotFound) {
		t.Fatalf("expected ErrForumNotFound, got %v", err)
	}

	members, err := store.ListForumMembers(ctx, forum.ID)
	if err != nil {
		t.Fatalf("ListForumMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	if err := store.LeaveForum(ctx, member, forum.ID); err != nil {
		t.Fatalf("LeaveForum: %v", err)
	}
	if err := store.LeaveForum(ctx, member, forum.ID); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestMessageValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := mustCreateUser(t, store, "frank")
	forum := mustCreateForum(t, store, "misc", "misc", userID)
	other := mustCreateForum(t, store, "other", "other", userID)

	if _, err := store.CreateMessage(ctx, 9999, userID, "hello", nil, nil, nil); !errors.Is(err, ErrForumNotFound) {
		t.Fatalf("expected ErrForumNotFound, got %v", err)
	}

	msg, err := store.CreateMessage(ctx, forum.ID, userID, "hello", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if msg.ID == 0 || msg.CreatedAt.IsZero() {
		t.Fatalf("expected populated id and timestamp: %+v", msg)
	}

	// Replying to a message in another forum must fail.
	otherMsg, err := store.CreateMessage(ctx, other.ID, userID, "elsewhere", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateMessage other forum: %v", err)
	}
	if _, err := store.CreateMessage(ctx, forum.ID, userID, "reply", nil, nil, &otherMsg.ID); !errors.Is(err, ErrReplyNotFound) {
		t.Fatalf("expected ErrReplyNotFound, got %v", err)
	}
	missing := int64(9999)
	if _, err := store.CreateMessage(ctx, forum.ID, userID, "reply", nil, nil, &missing); !errors.Is(err, ErrReplyNotFound) {
		t.Fatalf("expected ErrReplyNotFound for missing parent, got %v", err)
	}
}

func TestReplyPreviewTruncation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := mustCreateUser(t, store, "grace")
	forum := mustCreateForum(t, store, "long", "long", userID)

	long := strings.Repeat("x", 150)
	parent, err := store.CreateMessage(ctx, forum.ID, userID, long, nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateMessage parent: %v", err)
	}
	if _, err := store.CreateMessage(ctx, forum.ID, userID, "reply", nil, nil, &parent.ID); err != nil {
		t.Fatalf("CreateMessage reply: %v", err)
	}

	views, err := store.ListMessages(ctx, forum.ID, 50, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(views))
	}
	reply := views[1]
	if reply.ReplyPreview == nil {
		t.Fatalf("expected reply preview")
	}
	if reply.ReplyPreview.ID != parent.ID || reply.ReplyPreview.Username != "grace" {
		t.Fatalf("unexpected preview: %+v", reply.ReplyPreview)
	}
	want := strings.Repeat("x", 100) + "..."
	if reply.ReplyPreview.Content != want {
		t.Fatalf("expected truncated preview of %d chars, got %d", len(want), len(reply.ReplyPreview.Content))
	}
}

func TestDeletingParentNullsReplyReference(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := mustCreateUser(t, store, "heidi")
	forum := mustCreateForum(t, store, "threads", "talk", userID)

	parent, err := store.CreateMessage(ctx, forum.ID, userID, "parent", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateMessage parent: %v", err)
	}
	reply, err := store.CreateMessage(ctx, forum.ID, userID, "reply", nil, nil, &parent.ID)
	if err != nil {
		t.Fatalf("CreateMessage reply: %v", err)
	}
	if err := store.DeleteMessage(ctx, parent.ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}

	got, err := store.GetMessage(ctx, reply.ID)
	if err != nil {
		t.Fatalf("GetMessage reply: %v", err)
	}
	if got.ReplyTo != nil {
		t.Fatalf("expected reply_to cleared after parent delete, got %v", *got.ReplyTo)
	}
}

func TestForumAggregatesAndTrending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := mustCreateUser(t, store, "alice")
	bob := mustCreateUser(t, store, "bob")
	small := mustCreateForum(t, store, "small", "tiny", alice)
	big := mustCreateForum(t, store, "big", "huge", alice)

	if _, err := store.JoinForum(ctx, bob, big.ID, RoleMember); err != nil {
		t.Fatalf("JoinForum: %v", err)
	}
	if err := store.LikeForum(ctx, bob, big.ID); err != nil {
		t.Fatalf("LikeForum: %v", err)
	}
	// A second like from the same user must not double-count.
	if err := store.LikeForum(ctx, bob, big.ID); err != nil {
		t.Fatalf("LikeForum repeat: %v", err)
	}

	summaries, total, err := store.ListForumsPage(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListForumsPage: %v", err)
	}
	if total != 2 || len(summaries) != 2 {
		t.Fatalf("expected 2 forums, got total=%d len=%d", total, len(summaries))
	}
	byID := map[int64]ForumSummary{}
	for _, fs := range summaries {
		byID[fs.ID] = fs
	}
	if byID[big.ID].MemberCount != 2 || byID[big.ID].LikeCount != 1 {
		t.Fatalf("unexpected aggregates for big: %+v", byID[big.ID])
	}
	if byID[small.ID].MemberCount != 1 || byID[small.ID].LikeCount != 0 {
		t.Fatalf("unexpected aggregates for small: %+v", byID[small.ID])
	}

	trending, err := store.ListTrendingForums(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrendingForums: %v", err)
	}
	if len(trending) != 2 || trending[0].ID != big.ID {
		t.Fatalf("expected big forum first in trending, got %+v", trending)
	}
}

func TestSearchForums(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := mustCreateUser(t, store, "ivan")
	mustCreateForum(t, store, "go gophers", "golang", userID)
	mustCreateForum(t, store, "cooking", "food", userID)

	matches, err := store.SearchForums(ctx, "gopher")
	if err != nil {
		t.Fatalf("SearchForums: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "go gophers" {
		t.Fatalf("unexpected matches: %+v", matches)
	}

	byTag, err := store.SearchForums(ctx, "food")
	if err != nil {
		t.Fatalf("SearchForums by tag: %v", err)
	}
	if len(byTag) != 1 || byTag[0].Name != "cooking" {
		t.Fatalf("unexpected tag matches: %+v", byTag)
	}
}

func TestTopTags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := mustCreateUser(t, store, "judy")
	mustCreateForum(t, store, "one", "shared", userID)
	mustCreateForum(t, store, "two", "shared", userID)
	mustCreateForum(t, store, "three", "rare", userID)

	tags, err := store.TopTags(ctx, 10)
	if err != nil {
		t.Fatalf("TopTags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(tags))
	}
	if tags[0].Name != "shared" || tags[0].Count != 2 {
		t.Fatalf("unexpected top tag: %+v", tags[0])
	}
	if tags[1].Name != "rare" || tags[1].Count != 1 {
		t.Fatalf("unexpected second tag: %+v", tags[1])
	}
}

func TestDeleteForumCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := mustCreateUser(t, store, "kate")
	forum := mustCreateForum(t, store, "doomed", "gone", userID)
	if _, err := store.CreateMessage(ctx, forum.ID, userID, "bye", nil, nil, nil); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if err := store.DeleteForum(ctx, forum.ID); err != nil {
		t.Fatalf("DeleteForum: %v", err)
	}
	if err := store.DeleteForum(ctx, forum.ID); !errors.Is(err, ErrForumNotFound) {
		t.Fatalf("expected ErrForumNotFound on second delete, got %v", err)
	}
	if _, err := store.GetMembership(ctx, userID, forum.ID); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected membership removed, got %v", err)
	}
	views, err := store.ListMessages(ctx, forum.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("expected messages removed with forum, got %d", len(views))
	}
}

func TestPostsAndStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := mustCreateUser(t, store, "alice")
	bob := mustCreateUser(t, store, "bob")
	forum := mustCreateForum(t, store, "stats", "numbers", alice)
	if err := store.LikeForum(ctx, bob, forum.ID); err != nil {
		t.Fatalf("LikeForum: %v", err)
	}

	post, err := store.CreatePost(ctx, alice, "first post", nil, nil)
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	posts, err := store.ListPosts(ctx, alice)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(posts) != 1 || posts[0].Content != "first post" {
		t.Fatalf("unexpected posts: %+v", posts)
	}

	// A user may only delete their own posts.
	if err := store.DeletePost(ctx, post.ID, bob); err == nil {
		t.Fatalf("expected error deleting another user's post")
	}
	if err := store.DeletePost(ctx, post.ID, alice); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}

	stats, err := store.GetUserStats(ctx, alice)
	if err != nil {
		t.Fatalf("GetUserStats: %v", err)
	}
	if stats.ForumsCreated != 1 || stats.ForumsJoined != 1 || stats.TotalLikes != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestListMessagesPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := mustCreateUser(t, store, "leo")
	forum := mustCreateForum(t, store, "pages", "paging", userID)

	for i := 0; i < 5; i++ {
		if _, err := store.CreateMessage(ctx, forum.ID, userID, "msg", nil, nil, nil); err != nil {
			t.Fatalf("CreateMessage %d: %v", i, err)
		}
	}

	first, err := store.ListMessages(ctx, forum.ID, 2, 0)
	if err != nil {
		t.Fatalf("ListMessages page 1: %v", err)
	}
	second, err := store.ListMessages(ctx, forum.ID, 2, 2)
	if err != nil {
		t.Fatalf("ListMessages page 2: %v", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 per page, got %d and %d", len(first), len(second))
	}
	if first[1].ID >= second[0].ID {
		t.Fatalf("expected ascending ids across pages: %d then %d", first[1].ID, second[0].ID)
	}
}
