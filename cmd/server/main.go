// Package main is the entrypoint for the sheltertrack API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/sheltertrack/internal/animal"
	"github.com/kiranshivaraju/sheltertrack/internal/api"
	"github.com/kiranshivaraju/sheltertrack/internal/api/handler"
	mw "github.com/kiranshivaraju/sheltertrack/internal/api/middleware"
	"github.com/kiranshivaraju/sheltertrack/internal/api/response"
	"github.com/kiranshivaraju/sheltertrack/internal/apikey"
	"github.com/kiranshivaraju/sheltertrack/internal/archive"
	"github.com/kiranshivaraju/sheltertrack/internal/cache"
	"github.com/kiranshivaraju/sheltertrack/internal/catalog"
	"github.com/kiranshivaraju/sheltertrack/internal/config"
	"github.com/kiranshivaraju/sheltertrack/internal/metrics"
	"github.com/kiranshivaraju/sheltertrack/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "store_driver", cfg.Store.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	slog.Info("store ready", "driver", cfg.Store.Driver)

	var redisCache cache.Cache
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer rc.Close()

		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		redisCache = rc
		slog.Info("redis connected", "rate_limit_per_minute", cfg.RateLimit.PerMinute)
	} else {
		slog.Warn("REDIS_URL not set; rate limiting disabled")
	}

	var archiver handler.Archiver
	if cfg.Export.Bucket != "" {
		a, err := archive.New(ctx, cfg.Export)
		if err != nil {
			return fmt.Errorf("create export archiver: %w", err)
		}
		archiver = a
		slog.Info("export archive enabled", "bucket", cfg.Export.Bucket, "prefix", cfg.Export.Prefix)
	}

	router := api.NewRouter(buildDependencies(cfg, st, redisCache, archiver))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// buildDependencies wires handlers and middleware. c and archiver may be nil.
func buildDependencies(cfg *config.Config, st store.Store, c cache.Cache, archiver handler.Archiver) api.Dependencies {
	var svcOpts []animal.Option
	deps := api.Dependencies{Auth: mw.NewAuth(st)}

	if cfg.Metrics.Enabled {
		rec := metrics.New()
		svcOpts = append(svcOpts, animal.WithObserver(rec))
		deps.Metrics = rec.Handler()
		deps.MetricsMiddleware = rec.Middleware
	}
	if c != nil {
		deps.RateLimit = mw.NewRateLimit(c, cfg.RateLimit.PerMinute)
	}

	var animalOpts []handler.AnimalsOption
	if archiver != nil {
		animalOpts = append(animalOpts, handler.WithArchiver(archiver))
	}
	animals := handler.NewAnimals(animal.NewService(st, svcOpts...), animalOpts...)
	keys := apikey.NewManager(st, 0)

	deps.HealthHandler = healthHandler(st, c)
	deps.SpeciesHandler = handler.NewSpeciesHandler(catalog.Default())
	deps.IntakeHandler = animals.Intake
	deps.ListInHandler = animals.ListIn
	deps.ListOutHandler = animals.ListOut
	deps.GetHandler = animals.Get
	deps.EditHandler = animals.Edit
	deps.MarkOutHandler = animals.MarkOut
	deps.MoveHandler = animals.Move
	deps.RemarkHandler = animals.SetRemark
	deps.StatsHandler = animals.Stats
	deps.SearchHandler = animals.Search
	deps.RemoveHandler = animals.Remove
	deps.ExportHandler = animals.Export
	deps.ArchiveHandler = animals.Archive
	deps.CreateKeyHandler = handler.NewCreateKeyHandler(keys)
	deps.ListKeysHandler = handler.NewListKeysHandler(keys)
	deps.RevokeKeyHandler = handler.NewRevokeKeyHandler(keys)
	return deps
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks store and cache connectivity. A nil cache reports "disabled".
func healthHandler(s pinger, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			slog.Warn("health check: store ping failed", "error", err)
			checks["database"] = "degraded"
		}
		if c == nil {
			checks["cache"] = "disabled"
		} else if err := c.Ping(r.Context()); err != nil {
			slog.Warn("health check: cache ping failed", "error", err)
			checks["cache"] = "degraded"
		}

		if checks["database"] == "degraded" || checks["cache"] == "degraded" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
