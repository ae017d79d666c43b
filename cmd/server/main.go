package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"forumhub/internal/app"
)

func main() {
	_ = godotenv.Load()

	cfg := app.LoadServerConfig()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "server listen address")
	flag.StringVar(&cfg.WSPath, "ws-path", cfg.WSPath, "websocket chat path")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	flag.StringVar(&cfg.UploadDir, "uploads", cfg.UploadDir, "upload directory")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := handle.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
