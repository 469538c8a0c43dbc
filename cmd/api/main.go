package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/primebarber/site-backend/config"
	"github.com/primebarber/site-backend/internal/bootstrap"
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/secrets"
)

const shutdownTimeout = 20 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	vault, err := secrets.NewVault()
	if err != nil {
		log.Fatalf("vault: %v", err)
	}
	var kv secrets.KV
	if vault != nil {
		kv = vault
	}
	if err := secrets.Resolve(ctx, kv, cfg.Secrets()); err != nil {
		log.Fatalf("resolve secrets: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Service: cfg.App.ServiceName})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	bootstrap.SetGinMode(cfg.App.Environment)

	app, err := bootstrap.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("startup failed", zap.Error(err))
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infow("listening", "addr", srv.Addr, "env", cfg.App.Environment, "version", cfg.App.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("http shutdown", zap.Error(err))
	}
	// Remote mirrors and purchase tracking may still be running.
	if err := app.Tasks.WaitContext(shutdownCtx); err != nil {
		logger.Warnw("detached tasks still running at exit", zap.Error(err))
	}
}
