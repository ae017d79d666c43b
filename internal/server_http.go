package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"forumhub/internal/storage"
)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

type passwordChangeRequest struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

func (s *Server) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.authLimiter.Allow(s.clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	password := strings.TrimSpace(req.Password)
	if username == "" || email == "" || password == "" {
		writeError(w, http.StatusBadRequest, errors.New("username, email, and password are required"))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	userID, err := s.store.CreateUser(r.Context(), username, email, hash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			writeError(w, http.StatusConflict, errors.New("username or email already taken"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.Signups.Inc()
	writeJSON(w, http.StatusCreated, map[string]any{"user_id": userID, "username": username})
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.authLimiter.Allow(s.clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	password := strings.TrimSpace(req.Password)
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, errors.New("username and password are required"))
		return
	}
	user, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(s.tokenTTL)
	if err := s.store.CreateSession(r.Context(), user.ID, token, expiresAt); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.Logins.Inc()
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		ExpiresAt: expiresAt,
	})
}

func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteSession(r.Context(), authCtx.Token); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandlePasswordChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req passwordChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.New) == "" || strings.TrimSpace(req.Current) == "" {
		writeError(w, http.StatusBadRequest, errors.New("both current and new passwords required"))
		return
	}
	user, err := s.store.GetUserByID(r.Context(), authCtx.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Current)) != nil {
		writeError(w, http.StatusUnauthorized, errors.New("current password incorrect"))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.New), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.UpdatePassword(r.Context(), authCtx.UserID, hash); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleForumExists answers liveness checks for a forum's room without
// opening a websocket.
func (s *Server) HandleForumExists(w http.ResponseWriter, r *http.Request) {
	forumID, err := strconv.ParseInt(r.URL.Query().Get("forum"), 10, 64)
	if err != nil {
		http.Error(w, "missing forum", http.StatusBadRequest)
		return
	}
	if s.hub.Exists(forumID) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (s *Server) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth resolves the request's bearer token, writing the failure
// response itself when authentication fails.
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (authCtx, bool) {
	ctx, err := s.authenticateRequest(r)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errUnauthorized) {
			status = http.StatusUnauthorized
		}
		http.Error(w, http.StatusText(status), status)
		return authCtx{}, false
	}
	return ctx, true
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
