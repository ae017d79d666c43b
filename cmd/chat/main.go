package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"forumhub/internal/app"
)

func main() {
	_ = godotenv.Load()

	defaultServer := envOrDefault("FORUMHUB_SERVER", "http://localhost:8080")
	defaultUser := envOrDefault("FORUMHUB_USER", "")

	serverURL := flag.String("server", defaultServer, "server base URL (e.g., http://localhost:8080)")
	username := flag.String("user", defaultUser, "default username for login prompts")
	flag.Parse()

	cfg := app.ClientConfig{
		ServerURL: *serverURL,
		Username:  *username,
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
