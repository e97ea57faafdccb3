// Package main is the entry point of the groupmatch HTTP API.
//
// The API accepts queue tickets, group tickets and group membership changes,
// reports queue status and exposes operator routes to create groups and run
// a matchmaking batch for one course on demand.
//
// `groupmatch-api hash-key <key>` prints a bcrypt hash usable in
// HTTP_OPERATOR_KEYS.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/config"
	"github.com/studyhub/groupmatch/internal/application/command"
	"github.com/studyhub/groupmatch/internal/application/query"
	"github.com/studyhub/groupmatch/internal/bootstrap"
	httpapi "github.com/studyhub/groupmatch/internal/interface/http"
	"github.com/studyhub/groupmatch/internal/interface/http/handlers"
)

func main() {
	if len(os.Args) == 3 && os.Args[1] == "hash-key" {
		hash, err := handlers.HashAPIKey(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash-key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

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

	log, err := bootstrap.NewLogger(cfg, "groupmatch-api")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting groupmatch api",
		zap.String("env", string(cfg.App.Environment)),
		zap.String("version", cfg.App.Version),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("redis", cfg.Redis.Enabled))

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

	// ─────────────────────────────────────────────────────────────────────────
	// 3. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	deps := command.Deps{
		Store:     app.Store,
		Publisher: app.Bus,
		Logger:    log.Named("command"),
	}

	orchestrator, err := app.NewOrchestrator()
	if err != nil {
		return err
	}

	var invalidator command.CacheInvalidator
	if c, ok := app.Directory.(command.CacheInvalidator); ok {
		invalidator = c
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.Config{
		Addr:               cfg.HTTP.Addr,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		MaxBodyBytes:       cfg.HTTP.MaxBodyBytes,
		RateLimitPerSecond: cfg.HTTP.RateLimitPerSecond,
		RateLimitBurst:     cfg.HTTP.RateLimitBurst,
		OperatorKeys:       cfg.HTTP.OperatorKeys,
		CORSOrigins:        cfg.HTTP.CORSOrigins,
	}
	if len(httpCfg.OperatorKeys) == 0 {
		log.Warn("HTTP_OPERATOR_KEYS is empty, operator routes are disabled")
	}

	httpDeps := httpapi.Dependencies{
		EnqueueTicket:       command.NewEnqueueTicketHandler(deps),
		WithdrawTicket:      command.NewWithdrawTicketHandler(deps),
		EnqueueGroupTicket:  command.NewEnqueueGroupTicketHandler(deps),
		WithdrawGroupTicket: command.NewWithdrawGroupTicketHandler(deps),
		LeaveGroup:          command.NewLeaveGroupHandler(deps),
		CreateGroup:         command.NewCreateGroupHandler(deps),
		UpdatePreferences:   command.NewUpdatePreferencesHandler(deps, invalidator),
		QueueStatus:         query.NewQueueStatusHandler(app.Store, app.Directory, nil, log.Named("query")),
		Runner:              orchestrator,
		Health:              app.Health,
		Logger:              log,
	}
	if cfg.Observability.MetricsEnabled {
		httpDeps.Metrics = app.Metrics
	}
	server := httpapi.NewServer(httpCfg, httpDeps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	<-errCh

	log.Info("shutdown completed")
	return nil
}
