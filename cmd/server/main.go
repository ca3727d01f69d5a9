package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	app "github.com/hemanth-chakravarthy/realtime-geosync/internal/app"
	httpx "github.com/hemanth-chakravarthy/realtime-geosync/internal/http"
	"github.com/hemanth-chakravarthy/realtime-geosync/internal/registry"
	ws "github.com/hemanth-chakravarthy/realtime-geosync/internal/ws"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Room registry + idle reaper
	reg := registry.New(logger)
	go reg.ReapLoop(ctx, cfg.ReapInterval, cfg.RoomIdleAfter)

	// Session gateway
	hub := ws.NewHub(logger, reg)

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, hub, reg)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	// shutdown
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
