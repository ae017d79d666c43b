package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"forumhub/internal/storage"
)

func messageViewToDTO(view storage.MessageView) ChatMessage {
	dto := ChatMessage{
		MessageID: view.ID,
		ForumID:   view.ForumID,
		UserID:    view.UserID,
		Username:  view.Username,
		Content:   view.Content,
		FileURL:   view.FileURL,
		FileType:  view.FileType,
		ReplyTo:   view.ReplyTo,
		CreatedAt: isoTime(view.CreatedAt),
	}
	if view.ReplyPreview != nil {
		dto.ReplyPreview = &ReplyPreview{
			ID:       view.ReplyPreview.ID,
			Username: view.ReplyPreview.Username,
			Content:  view.ReplyPreview.Content,
		}
	}
	return dto
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request, forumID int64) {
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
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	views, err := s.store.ListMessages(r.Context(), forumID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]ChatMessage, 0, len(views))
	for _, view := range views {
		out = append(out, messageViewToDTO(view))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

// sendMessage accepts a multipart form with content, an optional reply_to,
// and an optional file. The persisted message is fanned out over the forum's
// live room so socket listeners see REST-originated messages too.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request, forumID int64) {
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

	content := strings.TrimSpace(r.FormValue("content"))
	var replyTo *int64
	if raw := r.FormValue("reply_to"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid reply_to"))
			return
		}
		replyTo = &id
	}

	var fileURL, fileType *string
	file, header, hasFile, err := formFile(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if hasFile {
		defer file.Close()
		saved, err := s.saveUpload(file, header, uploadKindMessage)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		fileURL, fileType = &saved.URL, &saved.FileType
	}
	if content == "" && fileURL == nil {
		writeError(w, http.StatusBadRequest, errors.New("content or file required"))
		return
	}

	msg, err := s.store.CreateMessage(r.Context(), forumID, authCtx.UserID, content, fileURL, fileType, replyTo)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	outbound := ChatMessage{
		MessageID: msg.ID,
		ForumID:   forumID,
		UserID:    authCtx.UserID,
		Username:  authCtx.Username,
		Content:   content,
		FileURL:   fileURL,
		FileType:  fileType,
		ReplyTo:   replyTo,
		CreatedAt: isoTime(msg.CreatedAt),
	}
	if payload, err := json.Marshal(outbound); err == nil {
		dropped := s.hub.Broadcast(forumID, payload)
		s.metrics.MessagesBroadcast.Inc()
		if dropped > 0 {
			s.metrics.SlowClientDrops.Add(float64(dropped))
		}
	}
	writeJSON(w, http.StatusCreated, outbound)
}

// updateForumBackground stores a new background image for the forum.
func (s *Server) updateForumBackground(w http.ResponseWriter, r *http.Request, forumID int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.requireRole(w, r, authCtx, forumID, storage.RoleAdmin) {
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

	saved, err := s.saveUpload(file, header, uploadKindForum)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.UpdateForumBackground(r.Context(), forumID, saved.URL); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"background": saved.URL})
}
