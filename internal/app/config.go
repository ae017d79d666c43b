package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr           string
	WSPath         string
	DBPath         string
	UploadDir      string
	PublicURL      string
	AllowedOrigins []string
	TokenTTL       time.Duration
	Env            string
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string
	Username  string
}

// LoadServerConfig builds a ServerConfig from the environment, applying
// defaults for anything unset.
func LoadServerConfig() ServerConfig {
	cfg := ServerConfig{
		Addr:      envOrDefault("FORUMHUB_ADDR", ":8080"),
		WSPath:    NormalizeWSPath(os.Getenv("FORUMHUB_WS_PATH")),
		DBPath:    DefaultDBPath(),
		UploadDir: envOrDefault("FORUMHUB_UPLOAD_DIR", "uploads"),
		PublicURL: os.Getenv("FORUMHUB_PUBLIC_URL"),
		Env:       envOrDefault("FORUMHUB_ENV", "development"),
		TokenTTL:  30 * 24 * time.Hour,
	}
	if raw := os.Getenv("FORUMHUB_TOKEN_TTL_HOURS"); raw != "" {
		if hours, err := strconv.Atoi(raw); err == nil && hours > 0 {
			cfg.TokenTTL = time.Duration(hours) * time.Hour
		}
	}
	if origins := os.Getenv("FORUMHUB_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}
	return cfg
}

// NewLogger builds the process logger. Production gets JSON lines;
// anything else gets human-readable text with debug enabled.
func NewLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("FORUMHUB_DB_PATH"); env != "" {
		return env
	}
	if env := os.Getenv("FORUMHUB_DATA_DIR"); env != "" {
		return filepath.Join(env, "forumhub.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "forumhub", "forumhub.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Forumhub", "forumhub.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Forumhub", "forumhub.db")
		}
		return filepath.Join(home, ".local", "share", "forumhub", "forumhub.db")
	}
	return filepath.Join(".", ".forumhub", "forumhub.db")
}

// NormalizeWSPath guarantees the websocket path starts with '/' and falls
// back to /chat/ws when empty.
func NormalizeWSPath(path string) string {
	if path == "" {
		return "/chat/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
