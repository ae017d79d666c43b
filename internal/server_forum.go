package internal

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"forumhub/internal/storage"
)

type createForumRequest struct {
	Name    string `json:"name"`
	Tag     string `json:"tag"`
	Caption string `json:"caption"`
}

type updateForumRequest struct {
	Name    string `json:"name"`
	Tag     string `json:"tag"`
	Caption string `json:"caption"`
}

type forumDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Tag         string `json:"tag"`
	Caption     string `json:"caption"`
	Background  string `json:"background"`
	CreatedBy   int64  `json:"created_by"`
	CreatedAt   string `json:"created_at"`
	MemberCount *int64 `json:"member_count,omitempty"`
	LikeCount   *int64 `json:"like_count,omitempty"`
	Viewers     *int   `json:"viewers,omitempty"`
}

type forumPageResponse struct {
	Forums []forumDTO `json:"forums"`
	Total  int64      `json:"total"`
	Page   int        `json:"page"`
	Limit  int        `json:"limit"`
}

type memberDTO struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

func forumToDTO(f storage.Forum) forumDTO {
	return forumDTO{
		ID:         f.ID,
		Name:       f.Name,
		Tag:        f.Tag,
		Caption:    f.Caption,
		Background: f.Background,
		CreatedBy:  f.CreatedBy,
		CreatedAt:  isoTime(f.CreatedAt),
	}
}

func summaryToDTO(fs storage.ForumSummary) forumDTO {
	dto := forumToDTO(fs.Forum)
	members, likes := fs.MemberCount, fs.LikeCount
	dto.MemberCount = &members
	dto.LikeCount = &likes
	return dto
}

func (s *Server) HandleCreateForum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req createForumRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("forum name is required"))
		return
	}
	forum, err := s.store.CreateForum(r.Context(), name, strings.TrimSpace(req.Tag),
		strings.TrimSpace(req.Caption), "", authCtx.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, forumToDTO(forum))
}

func (s *Server) HandleForumPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	summaries, total, err := s.store.ListForumsPage(r.Context(), limit, (page-1)*limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := forumPageResponse{Forums: make([]forumDTO, 0, len(summaries)), Total: total, Page: page, Limit: limit}
	for _, fs := range summaries {
		resp.Forums = append(resp.Forums, summaryToDTO(fs))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) HandleTrendingForums(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	limit := queryInt(r, "limit", 10)
	if limit < 1 || limit > 50 {
		limit = 10
	}
	summaries, err := s.store.ListTrendingForums(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]forumDTO, 0, len(summaries))
	for _, fs := range summaries {
		out = append(out, summaryToDTO(fs))
	}
	writeJSON(w, http.StatusOK, map[string]any{"forums": out})
}

func (s *Server) HandleSearchForums(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		writeError(w, http.StatusBadRequest, errors.New("keyword is required"))
		return
	}
	forums, err := s.store.SearchForums(r.Context(), keyword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"forums": forumsToDTOs(forums)})
}

func (s *Server) HandleJoinedForums(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	forums, err := s.store.ListJoinedForums(r.Context(), authCtx.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"forums": forumsToDTOs(forums)})
}

func (s *Server) HandleCreatedForums(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	forums, err := s.store.ListCreatedForums(r.Context(), authCtx.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"forums": forumsToDTOs(forums)})
}

func forumsToDTOs(forums []storage.Forum) []forumDTO {
	out := make([]forumDTO, 0, len(forums))
	for _, f := range forums {
		out = append(out, forumToDTO(f))
	}
	return out
}

// HandleForum dispatches /forum/{id} and /forum/{id}/{action} routes.
func (s *Server) HandleForum(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/forum/")
	parts := strings.SplitN(rest, "/", 2)
	forumID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	switch action {
	case "":
		s.getForum(w, r, forumID)
	case "update":
		s.updateForum(w, r, forumID)
	case "update-bg":
		s.updateForumBackground(w, r, forumID)
	case "delete":
		s.deleteForum(w, r, forumID)
	case "members":
		s.listForumMembers(w, r, forumID)
	case "join":
		s.joinForum(w, r, forumID)
	case "leave":
		s.leaveForum(w, r, forumID)
	case "like":
		s.likeForum(w, r, forumID)
	case "unlike":
		s.unlikeForum(w, r, forumID)
	case "likes":
		s.countForumLikes(w, r, forumID)
	case "messages":
		s.listMessages(w, r, forumID)
	case "send":
		s.sendMessage(w, r, forumID)
	default:
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	}
}

func (s *Server) getForum(w http.ResponseWriter, r *http.Request, forumID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	forum, err := s.store.GetForum(r.Context(), forumID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	dto := forumToDTO(forum)
	if members, err := s.store.ListForumMembers(r.Context(), forumID); err == nil {
		count := int64(len(members))
		dto.MemberCount = &count
	}
	if likes, err := s.store.CountForumLikes(r.Context(), forumID); err == nil {
		dto.LikeCount = &likes
	}
	viewers := s.presence.ForumViewers(forumID)
	dto.Viewers = &viewers
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) updateForum(w http.ResponseWriter, r *http.Request, forumID int64) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.requireRole(w, r, authCtx, forumID, storage.RoleModerator) {
		return
	}
	var req updateForumRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.UpdateForum(r.Context(), forumID,
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Tag), strings.TrimSpace(req.Caption)); err != nil {
		writeStoreError(w, err)
		return
	}
	forum, err := s.store.GetForum(r.Context(), forumID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forumToDTO(forum))
}

func (s *Server) deleteForum(w http.ResponseWriter, r *http.Request, forumID int64) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.requireRole(w, r, authCtx, forumID, storage.RoleAdmin) {
		return
	}
	if err := s.store.DeleteForum(r.Context(), forumID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listForumMembers(w http.ResponseWriter, r *http.Request, forumID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if exists, err := s.store.ForumExists(r.Context(), forumID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	} else if !exists {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	members, err := s.store.ListForumMembers(r.Context(), forumID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]memberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, memberDTO{
			UserID:   m.UserID,
			Username: m.Username,
			Role:     m.Role,
			JoinedAt: isoTime(m.JoinedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

func (s *Server) joinForum(w http.ResponseWriter, r *http.Request, forumID int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	membership, err := s.store.JoinForum(r.Context(), authCtx.UserID, forumID, storage.RoleMember)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyMember):
			writeError(w, http.StatusConflict, errors.New("already a member"))
		case errors.Is(err, storage.ErrForumNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"forum_id":  membership.ForumID,
		"role":      membership.Role,
		"joined_at": isoTime(membership.JoinedAt),
	})
}

func (s *Server) leaveForum(w http.ResponseWriter, r *http.Request, forumID int64) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if err := s.store.LeaveForum(r.Context(), authCtx.UserID, forumID); err != nil {
		if errors.Is(err, storage.ErrNotMember) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) likeForum(w http.ResponseWriter, r *http.Request, forumID int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if err := s.store.LikeForum(r.Context(), authCtx.UserID, forumID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unlikeForum(w http.ResponseWriter, r *http.Request, forumID int64) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if err := s.store.UnlikeForum(r.Context(), authCtx.UserID, forumID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) countForumLikes(w http.ResponseWriter, r *http.Request, forumID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	count, err := s.store.CountForumLikes(r.Context(), forumID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"likes": count})
}

var roleRank = map[string]int{
	storage.RoleMember:    1,
	storage.RoleModerator: 2,
	storage.RoleAdmin:     3,
}

// requireRole checks the caller holds at least the given role in the forum,
// writing the failure response itself otherwise.
func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, ctx authCtx, forumID int64, minRole string) bool {
	membership, err := s.store.GetMembership(r.Context(), ctx.UserID, forumID)
	if err != nil {
		if errors.Is(err, storage.ErrNotMember) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return false
		}
		writeError(w, http.StatusInternalServerError, err)
		return false
	}
	if roleRank[membership.Role] < roleRank[minRole] {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrForumNotFound),
		errors.Is(err, storage.ErrUserNotFound),
		errors.Is(err, storage.ErrReplyNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
