package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"labelkit/backend/internal/cache"
	"labelkit/backend/internal/config"
	"labelkit/backend/internal/document"
	"labelkit/backend/internal/httpapi"
	"labelkit/backend/internal/logging"
	"labelkit/backend/internal/pipeline"
	"labelkit/backend/internal/render"
	"labelkit/backend/internal/service"
	"labelkit/backend/internal/store"
	"labelkit/backend/internal/store/memory"
	pgstore "labelkit/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		slog.Error("invalid security configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", "error", err)
			os.Exit(1)
		}
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("postgres migration failed", "error", err)
			os.Exit(1)
		}
		repo = pg
		closers = append(closers, pg.Close)
		slog.Info("repository ready", "backend", "postgres")
	} else {
		repo = memory.NewSeeded()
		slog.Info("repository ready", "backend", "memory")
	}

	symbolCache := symbolCacheFor(ctx, cfg, &closers)

	renderer := render.NewCachedRenderer(render.NewBarcodeRenderer(), symbolCache, cfg.SymbolCacheTTL())
	engine := pipeline.New(repo, renderer, pipeline.Options{
		Workers:       cfg.RenderWorkers,
		RenderTimeout: cfg.RenderTimeout(),
	})
	svc := service.New(repo, engine, renderer, document.NewPDFWriter(), service.Defaults{
		PageWidthMm:  cfg.PageWidthMm,
		PageHeightMm: cfg.PageHeightMm,
		MarginMm:     cfg.PageMarginMm,
		Currency:     cfg.CurrencySymbol,
		MaxLabels:    cfg.MaxLabelsPerJob,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("label service listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			slog.Error("close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

// symbolCacheFor prefers redis when configured and reachable, otherwise an
// in-process cache so single instances still skip repeated rasterization.
func symbolCacheFor(ctx context.Context, cfg config.Config, closers *[]func() error) cache.SymbolCache {
	if cfg.RedisAddr == "" {
		slog.Info("symbol cache ready", "backend", "memory")
		return cache.NewMemorySymbolCache(cfg.SymbolCacheMaxEntries, cfg.SymbolCacheTTL())
	}

	redisCache := cache.NewRedisSymbolCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		slog.Warn("redis unavailable, using in-memory symbol cache", "error", err)
		_ = redisCache.Close()
		return cache.NewMemorySymbolCache(cfg.SymbolCacheMaxEntries, cfg.SymbolCacheTTL())
	}
	*closers = append(*closers, redisCache.Close)
	slog.Info("symbol cache ready", "backend", "redis")
	return redisCache
}

var weakSecrets = []string{"secret", "changeme", "password", "labelkit"}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	lowered := strings.ToLower(cfg.AuthSecret)
	for _, weak := range weakSecrets {
		if strings.ReplaceAll(lowered, weak, "") == "" {
			return fmt.Errorf("AUTH_SECRET must not be a repeated common word")
		}
	}
	if strings.TrimSpace(cfg.AllowedOrigin) == "" {
		return fmt.Errorf("ALLOWED_ORIGIN must be set")
	}
	return nil
}
