package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bcrapp/bcr-backend/pkg/api"
	"github.com/bcrapp/bcr-backend/pkg/auth"
	"github.com/bcrapp/bcr-backend/pkg/cache"
	"github.com/bcrapp/bcr-backend/pkg/config"
	"github.com/bcrapp/bcr-backend/pkg/logger"
	"github.com/bcrapp/bcr-backend/pkg/media"
	"github.com/bcrapp/bcr-backend/pkg/ratelimit"
	"github.com/bcrapp/bcr-backend/pkg/scheduler"
	"github.com/bcrapp/bcr-backend/pkg/scrape"
	"github.com/bcrapp/bcr-backend/pkg/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	logger.Info("starting badminton rankings backend on %s", cfg.Addr)

	sink, err := media.NewLocalSink(cfg.MediaRoot, "/media-files")
	if err != nil {
		logger.Error("media sink init failed: %v", err)
		os.Exit(1)
	}
	library, err := media.NewLibrary(filepath.Join(cfg.MediaRoot, "photos.db"), sink)
	if err != nil {
		logger.Error("photo library init failed: %v", err)
		os.Exit(1)
	}
	defer library.Close()

	store := cache.New(cfg.CacheTTL, cache.SystemClock())
	svc := service.New(
		store,
		scrape.NewNational("", cfg.UpstreamTimeout),
		scrape.NewProvincial("", cfg.UpstreamTimeout),
		scrape.NewNews("", cfg.UpstreamTimeout),
		scrape.NewCalendar("", cfg.UpstreamTimeout),
		cache.SystemClock(),
		cfg.UpstreamTimeout,
	)

	authz := auth.New(cfg.MediaAPIKey, cfg.SelfHMACSecret)
	limiter := ratelimit.New(cfg.RateLimitWritePerMin, time.Minute)
	server := api.NewServer(svc, library, authz, limiter, *cfg)

	if cfg.SchedulerEnabled {
		warmer, err := scheduler.New(cfg.SchedulerCron, svc, 10*time.Minute)
		if err != nil {
			logger.Error("scheduler init failed: %v", err)
			os.Exit(1)
		}
		warmer.Start()
		defer warmer.Stop()
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed: %v", err)
		}
	}
	logger.Info("server stopped")
}
