package internal

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"forumhub/internal/storage"
)

type profileDTO struct {
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	Email      string `json:"email,omitempty"`
	Avatar     string `json:"avatar"`
	Background string `json:"background"`
	Bio        string `json:"bio"`
	CreatedAt  string `json:"created_at"`

	ForumsCreated int64 `json:"forums_created"`
	ForumsJoined  int64 `json:"forums_joined"`
	TotalLikes    int64 `json:"total_likes"`
	Online        bool  `json:"online"`
}

type updateProfileRequest struct {
	Bio        string `json:"bio"`
	Background string `json:"background"`
}

type createPostRequest struct {
	Content string `json:"content"`
}

type postDTO struct {
	ID        int64   `json:"id"`
	UserID    int64   `json:"user_id"`
	Content   string  `json:"content"`
	FileURL   *string `json:"file_url"`
	FileType  *string `json:"file_type"`
	CreatedAt string  `json:"created_at"`
}

func (s *Server) profileFor(r *http.Request, user *storage.User, includeEmail bool) (profileDTO, error) {
	stats, err := s.store.GetUserStats(r.Context(), user.ID)
	if err != nil {
		return profileDTO{}, err
	}
	dto := profileDTO{
		UserID:        user.ID,
		Username:      user.Username,
		Avatar:        user.Avatar,
		Background:    user.Background,
		Bio:           user.Bio,
		CreatedAt:     isoTime(user.CreatedAt),
		ForumsCreated: stats.ForumsCreated,
		ForumsJoined:  stats.ForumsJoined,
		TotalLikes:    stats.TotalLikes,
		Online:        s.presence.Online(user.ID),
	}
	if includeEmail {
		dto.Email = user.Email
	}
	return dto, nil
}

// HandleProfile serves the caller's own profile and profile updates.
func (s *Server) HandleProfile(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		user, err := s.store.GetUserByID(r.Context(), authCtx.UserID)
		if err != nil || user == nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		dto, err := s.profileFor(r, user, true)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, dto)
	case http.MethodPut, http.MethodPatch:
		var req updateProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.store.UpdateProfile(r.Context(), authCtx.UserID,
			strings.TrimSpace(req.Bio), strings.TrimSpace(req.Background)); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet)
	}
}

// HandleAvatar replaces the caller's avatar with an uploaded image.
func (s *Server) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("request too large"))
		return
	}
	file, header, hasFile, err := formFile(r, "file")
	if err != nil || !hasFile {
		writeError(w, http.StatusBadRequest, errors.New("file required"))
		return
	}
	defer file.Close()

	saved, err := s.saveUpload(file, header, uploadKindAvatar)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if saved.FileType != "image" {
		writeError(w, http.StatusBadRequest, errors.New("avatar must be an image"))
		return
	}
	if err := s.store.UpdateAvatar(r.Context(), authCtx.UserID, saved.URL); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar": saved.URL})
}

// HandlePosts serves the caller's profile posts.
func (s *Server) HandlePosts(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.listPosts(w, r, authCtx.UserID)
	case http.MethodPost:
		s.createPost(w, r, authCtx)
	default:
		methodNotAllowed(w, http.MethodGet)
	}
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request, userID int64) {
	posts, err := s.store.ListPosts(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]postDTO, 0, len(posts))
	for _, p := range posts {
		out = append(out, postDTO{
			ID: p.ID, UserID: p.UserID, Content: p.Content,
			FileURL: p.FileURL, FileType: p.FileType, CreatedAt: isoTime(p.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": out})
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request, authCtx authCtx) {
	var (
		content           string
		fileURL, fileType *string
	)
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, errors.New("request too large"))
			return
		}
		content = strings.TrimSpace(r.FormValue("content"))
		file, header, hasFile, err := formFile(r, "file")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if hasFile {
			defer file.Close()
			saved, err := s.saveUpload(file, header, uploadKindPost)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			fileURL, fileType = &saved.URL, &saved.FileType
		}
	} else {
		var req createPostRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		content = strings.TrimSpace(req.Content)
	}
	if content == "" && fileURL == nil {
		writeError(w, http.StatusBadRequest, errors.New("content or file required"))
		return
	}
	post, err := s.store.CreatePost(r.Context(), authCtx.UserID, content, fileURL, fileType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, postDTO{
		ID: post.ID, UserID: post.UserID, Content: post.Content,
		FileURL: post.FileURL, FileType: post.FileType, CreatedAt: isoTime(post.CreatedAt),
	})
}

// HandleDeletePost removes one of the caller's posts (/profile/posts/{id}).
func (s *Server) HandleDeletePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	postID, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/profile/posts/"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := s.store.DeletePost(r.Context(), postID, authCtx.UserID); err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUser serves another user's public profile (/user/{id}).
func (s *Server) HandleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/user/"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	user, err := s.store.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if user == nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	dto, err := s.profileFor(r, user, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}
