package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	contentgw "github.com/connectlist/contentgw"
	"github.com/connectlist/contentgw/internal/durable"
	"github.com/connectlist/contentgw/internal/logging"
	"github.com/connectlist/contentgw/internal/version"
)

const purgeInterval = time.Hour

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fatal("failed to load config", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	store, err := contentgw.OpenStore(cfg.Cache.Durable)
	if err != nil {
		fatal("failed to open durable store", err)
	}
	svc, err := contentgw.New(cfg, store)
	if err != nil {
		fatal("failed to create service", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("failed to close durable store", "error", err.Error())
		}
	}()
	if err := svc.RegisterConfiguredProviders(nil); err != nil {
		fatal("failed to register providers", err)
	}
	if len(svc.ListProviders()) == 0 {
		slog.Warn("no providers configured; set TMDB_ACCESS_TOKEN, RAWG_API_KEY, GOOGLE_BOOKS_API_KEY or YOUTUBE_API_KEY")
	}
	if cfg.Server.SessionSecret == "" {
		slog.Warn("SESSION_JWT_SECRET not set; sessions are not checked and the admin API is disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if p, ok := store.(durable.Purger); ok {
		go purgeExpired(ctx, p, purgeInterval)
	}

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(svc, cfg.Server),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err.Error())
		}
	}()

	slog.Info("contentgw listening",
		"version", version.Short(),
		"addr", addr,
		"providers", svc.ListProviders(),
		"durable_backend", string(cfg.Cache.Durable.Backend),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		fatal("server error", err) //nolint:gocritic
	}
	slog.Info("server stopped")
}

// loadConfig reads CONTENTGW_CONFIG when set and falls back to environment
// variables otherwise.
func loadConfig() (contentgw.Config, error) {
	var cfg contentgw.Config
	if path := os.Getenv("CONTENTGW_CONFIG"); path != "" {
		loaded, err := contentgw.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	} else {
		cfg = contentgw.ConfigFromEnv(os.Getenv)
	}
	if err := contentgw.ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// purgeExpired deletes expired durable rows every interval until ctx is done.
func purgeExpired(ctx context.Context, p durable.Purger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.DeleteExpired(ctx, now)
			if err != nil {
				slog.Warn("durable purge failed", "error", err.Error())
				continue
			}
			if n > 0 {
				slog.Info("durable purge", "deleted", n)
			}
		}
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err.Error())
	os.Exit(1)
}
