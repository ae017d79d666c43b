package internal

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"forumhub/internal/storage"
)

var errUnauthorized = errors.New("unauthorized")

// authCtx identifies the user behind an authenticated request.
type authCtx struct {
	UserID   int64
	Username string
	Token    string
}

// Server holds the shared state behind every HTTP and WebSocket handler.
type Server struct {
	store       *storage.Store
	hub         *Hub
	presence    *Presence
	metrics     *Metrics
	authLimiter *RateLimiter
	logger      *slog.Logger

	tokenTTL  time.Duration
	uploadDir string
	publicURL string
}

// ServerOptions configures a Server.
type ServerOptions struct {
	TokenTTL  time.Duration
	UploadDir string
	PublicURL string
	Logger    *slog.Logger
}

// NewServer wires a Server around an open store.
func NewServer(store *storage.Store, opts ServerOptions) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 30 * 24 * time.Hour
	}
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		store:       store,
		hub:         NewHub(),
		presence:    NewPresence(),
		metrics:     NewMetrics(),
		authLimiter: NewRateLimiter(10, time.Minute),
		logger:      opts.Logger,
		tokenTTL:    opts.TokenTTL,
		uploadDir:   opts.UploadDir,
		publicURL:   opts.PublicURL,
	}
	s.metrics.ObserveOnlineUsers(s.presence.OnlineUsers)
	return s
}

// Hub exposes the connection registry, mainly for tests.
func (s *Server) Hub() *Hub { return s.hub }

// MetricsHandler serves the Prometheus scrape endpoint.
func (s *Server) MetricsHandler() http.Handler { return s.metrics.Handler() }

// authenticateRequest resolves the bearer token on a request to a user.
func (s *Server) authenticateRequest(r *http.Request) (authCtx, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return authCtx{}, errUnauthorized
	}
	return s.authenticateToken(r, token)
}

func (s *Server) authenticateToken(r *http.Request, token string) (authCtx, error) {
	session, err := s.store.GetSession(r.Context(), token)
	if err != nil {
		return authCtx{}, err
	}
	if session == nil || time.Now().After(session.ExpiresAt) {
		return authCtx{}, errUnauthorized
	}
	username, err := s.store.GetUsername(r.Context(), session.UserID)
	if err != nil {
		return authCtx{}, errUnauthorized
	}
	return authCtx{UserID: session.UserID, Username: username, Token: token}, nil
}

// clientIP extracts the caller's address for rate limiting.
func (s *Server) clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
