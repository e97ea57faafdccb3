// Package main is the entry point of the groupmatch background worker.
//
// The worker runs the matchmaking batch on a fixed schedule: every course is
// attempted once per tick and at most one group is formed per course. Several
// replicas may run side by side when Redis is enabled, since course locks and
// domain events are then shared through Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/config"
	"github.com/studyhub/groupmatch/internal/bootstrap"
	"github.com/studyhub/groupmatch/internal/infrastructure/scheduler"
	"github.com/studyhub/groupmatch/internal/infrastructure/scheduler/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := bootstrap.NewLogger(cfg, "groupmatch-worker")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting groupmatch worker",
		zap.String("env", string(cfg.App.Environment)),
		zap.String("schedule", cfg.Matchmaking.Schedule),
		zap.Bool("matchmaking_enabled", cfg.Matchmaking.Enabled))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORE, REDIS, EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("shutdown finished with errors", zap.Error(err))
		}
	}()

	orchestrator, err := app.NewOrchestrator()
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedule, err := scheduler.ParseSchedule(cfg.Matchmaking.Schedule)
	if err != nil {
		return fmt.Errorf("invalid matchmaking schedule: %w", err)
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = cfg.App.Location
	sched := scheduler.New(schedCfg)
	sched.OnJobComplete(app.Metrics.ObserveJob)

	if err := sched.Register(jobs.NewMatchmakingJob(orchestrator, log), schedule); err != nil {
		return err
	}

	if cfg.Matchmaking.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				log.Warn("scheduler stop", zap.Error(err))
			}
		}()
	} else {
		log.Warn("MATCHMAKING_ENABLED=false, no batches will run")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. METRICS AND HEALTH ENDPOINT
	// ─────────────────────────────────────────────────────────────────────────
	var opsServer *http.Server
	if cfg.Observability.MetricsEnabled {
		r := chi.NewRouter()
		r.Handle("/metrics", app.Metrics.Handler())
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if !app.Health.Check(r.Context()).Healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		opsServer = &http.Server{
			Addr:              cfg.Observability.MetricsAddr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("ops server listening", zap.String("addr", opsServer.Addr))
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("ops server failed", zap.Error(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal", zap.Duration("timeout", cfg.App.ShutdownTimeout))

	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("ops server shutdown failed", zap.Error(err))
		}
	}

	log.Info("shutdown completed")
	return nil
}
