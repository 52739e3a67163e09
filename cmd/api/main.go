package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docstore-backend/internal/bootstrap"
	"docstore-backend/internal/shared/config"
	"docstore-backend/internal/shared/server"
	"docstore-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		telemetry.Error("startup.failed", map[string]any{"err": err.Error()})
		os.Exit(1)
	}

	go app.Reconciler.Start(ctx)

	go func() {
		telemetry.Info("metrics.listening", map[string]any{"port": cfg.MetricsPort})
		if err := app.MetricsServer.Start(); err != nil {
			telemetry.Error("metrics.server_failed", map[string]any{"err": err.Error()})
		}
	}()

	addr := server.Addr(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		telemetry.Info("api.listening", map[string]any{"addr": addr, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error("api.server_failed", map[string]any{"err": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	telemetry.Info("shutdown.begin", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Warn("shutdown.api", map[string]any{"err": err.Error()})
	}
	if err := app.MetricsServer.Shutdown(shutdownCtx); err != nil {
		telemetry.Warn("shutdown.metrics", map[string]any{"err": err.Error()})
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			telemetry.Warn("shutdown.db", map[string]any{"err": err.Error()})
		}
	}
	telemetry.Info("shutdown.done", nil)
}
