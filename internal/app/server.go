package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/cors"

	intrnl "forumhub/internal"
	"forumhub/internal/storage"
)

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr   string
	server *http.Server
	store  *storage.Store
	logger *slog.Logger
	done   chan struct{}
	err    error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer wires handlers, opens the SQLite store, runs migrations, and
// starts serving in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	cfg.WSPath = NormalizeWSPath(cfg.WSPath)
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	logger := NewLogger(cfg.Env)

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	server := intrnl.NewServer(store, intrnl.ServerOptions{
		TokenTTL:  cfg.TokenTTL,
		UploadDir: cfg.UploadDir,
		PublicURL: cfg.PublicURL,
		Logger:    logger,
	})
	mux := http.NewServeMux()
	registerHandlers(mux, cfg.WSPath, server)

	corsOptions := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsOptions.AllowedOrigins = cfg.AllowedOrigins
		corsOptions.AllowCredentials = true
	} else {
		corsOptions.AllowedOrigins = []string{"*"}
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: cors.New(corsOptions).Handler(mux),
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &ServerHandle{
		addr:   listener.Addr().String(),
		server: httpServer,
		store:  store,
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		if ctx == nil {
			return
		}
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server shutdown error", "err", err)
		}
	}()

	logger.Info("server listening", "addr", handle.addr, "ws_path", cfg.WSPath)
	go handle.serve(listener)
	go handle.pruneSessions()

	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if closeErr := h.store.Close(); closeErr != nil {
		h.logger.Error("store close error", "err", closeErr)
	}
	h.err = err
}

// pruneSessions drops expired session tokens once an hour until shutdown.
func (h *ServerHandle) pruneSessions() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.store.DeleteExpiredSessions(context.Background(), time.Now()); err != nil {
				h.logger.Warn("session prune failed", "err", err)
			}
		}
	}
}

func registerHandlers(mux *http.ServeMux, wsPath string, server *intrnl.Server) {
	mux.HandleFunc(wsPath, server.ServeWS)

	mux.HandleFunc("/signup", server.HandleSignup)
	mux.HandleFunc("/login", server.HandleLogin)
	mux.HandleFunc("/logout", server.HandleLogout)
	mux.HandleFunc("/password/change", server.HandlePasswordChange)

	mux.HandleFunc("/forum/create", server.HandleCreateForum)
	mux.HandleFunc("/forum/page", server.HandleForumPage)
	mux.HandleFunc("/forum/trending", server.HandleTrendingForums)
	mux.HandleFunc("/forum/search", server.HandleSearchForums)
	mux.HandleFunc("/forum/joined", server.HandleJoinedForums)
	mux.HandleFunc("/forum/created", server.HandleCreatedForums)
	mux.HandleFunc("/forum/", server.HandleForum)

	mux.HandleFunc("/tag/top", server.HandleTopTags)

	mux.HandleFunc("/profile", server.HandleProfile)
	mux.HandleFunc("/profile/avatar", server.HandleAvatar)
	mux.HandleFunc("/profile/posts", server.HandlePosts)
	mux.HandleFunc("/profile/posts/", server.HandleDeletePost)
	mux.HandleFunc("/user/", server.HandleUser)

	mux.HandleFunc("/exists", server.HandleForumExists)
	mux.HandleFunc("/healthz", server.HandleHealthz)
	mux.Handle("/metrics", server.MetricsHandler())
	mux.Handle("/static/", server.StaticHandler())
}
