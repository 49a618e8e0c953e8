package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plataforma-estudio/chat-gateway/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)

	store, err := server.OpenAuditStore(cfg.Audit.DBPath)
	if err != nil {
		slog.Error("failed to open audit store", "path", cfg.Audit.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	sink := server.NewSink(store, cfg.Audit.QueueSize)
	go sink.Run()

	hub := server.NewHub(sink)
	go hub.Run()

	cipher := server.NewCipher(cfg.AESSecret)
	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub, cipher))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down gateway")

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		slog.Error("hub shutdown error", "error", err)
	}
	sink.Close()

	slog.Info("gateway stopped")
}
