// Package bootstrap wires configuration into the shared runtime of the API
// and worker binaries: store, optional Redis, event bus, locks and metrics.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/config"
	"github.com/studyhub/groupmatch/internal/application/matchmaking"
	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/domain/identity"
	"github.com/studyhub/groupmatch/internal/domain/matching"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/internal/infrastructure/messaging"
	"github.com/studyhub/groupmatch/internal/infrastructure/metrics"
	rediscache "github.com/studyhub/groupmatch/internal/infrastructure/persistence/redis"
	"github.com/studyhub/groupmatch/internal/interface/http/handlers"
	"github.com/studyhub/groupmatch/pkg/circuitbreaker"
	"github.com/studyhub/groupmatch/pkg/logger"
)

// EventBus is the bus both binaries publish to.
type EventBus interface {
	shared.EventBus
	Close() error
}

// App holds the runtime shared by the binaries.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Store uow.Store

	// Cache is nil when Redis is disabled.
	Cache *rediscache.Cache

	// Directory resolves display names, through the Redis cache when enabled.
	Directory identity.Directory

	Bus     EventBus
	Locker  matchmaking.CourseLocker
	Metrics *metrics.Metrics
	Health  *handlers.CompositeHealthChecker

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config, service string) (*zap.Logger, error) {
	return logger.New(logger.Options{
		Level:       cfg.Observability.LogLevel,
		Format:      logger.Format(cfg.Observability.LogFormat),
		Development: cfg.App.Debug && cfg.IsDevelopment(),
		Service:     service,
	})
}

// Open connects the store and, when enabled, Redis. On error everything
// opened so far is closed again.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	log = logger.OrNop(log)
	a := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.New(),
		Health:  handlers.NewCompositeHealthChecker(cfg.App.Version),
		Locker:  matchmaking.NewLocalLocker(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	store, err := OpenStore(ctx, cfg.Database, cfg.App.ConnectAttempts, log)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.onClose("store", store.Close)
	a.Health.AddCheck("database", handlers.PingCheck(store))
	a.Directory = store.Repositories().Users

	busCfg := messaging.DefaultConfig()
	busCfg.Logger = log.Named("events")
	busCfg.Observer = a.Metrics

	if !cfg.Redis.Enabled {
		log.Info("redis disabled, using process-local locks and events")
		a.Bus = messaging.NewInMemoryEventBus(busCfg)
	} else {
		cache, err := ConnectRedis(ctx, cfg.Redis, cfg.App.ConnectAttempts, log)
		if err != nil {
			return nil, err
		}
		a.Cache = cache
		a.onClose("redis", cache.Close)
		a.Health.AddCheck("redis", handlers.PingCheck(cache))

		userCache := rediscache.NewUserCache(cache, a.Directory, cfg.Redis.UserCacheTTL, log.Named("user_cache"))
		a.Directory = userCache
		a.Health.AddOptionalCheck("user_cache", func(context.Context) error {
			if st := userCache.BreakerState(); st != circuitbreaker.StateClosed {
				return fmt.Errorf("breaker %s", st)
			}
			return nil
		})
		a.Locker = rediscache.NewCourseLocker(cache, cfg.Matchmaking.LockTTL, log.Named("course_lock"))

		bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisBusConfig{
			Cache:   cache,
			Channel: cfg.Redis.Channel,
			Local:   busCfg,
			Logger:  log.Named("events"),
		})
		if err != nil {
			return nil, fmt.Errorf("redis event bus: %w", err)
		}
		a.Bus = bus
	}
	a.onClose("event bus", a.Bus.Close)

	if err := a.Bus.SubscribeAll(messaging.LogHandler(log.Named("events"))); err != nil {
		return nil, err
	}
	return a, nil
}

// NewOrchestrator builds the matchmaking orchestrator over the app runtime.
func (a *App) NewOrchestrator() (*matchmaking.Orchestrator, error) {
	mc := a.Config.Matchmaking
	m, err := matching.NewMatcher(matching.DefaultCriteria(), matching.WithMaxSubsets(mc.MaxSubsets))
	if err != nil {
		return nil, fmt.Errorf("matcher: %w", err)
	}

	opts := []matchmaking.Option{
		matchmaking.WithLocker(a.Locker),
		matchmaking.WithRecorder(a.Metrics),
		matchmaking.WithCourseTimeout(mc.CourseTimeout),
		matchmaking.WithLogger(a.Logger),
	}
	if mc.Seed != 0 {
		opts = append(opts, matchmaking.WithRand(rand.New(rand.NewPCG(mc.Seed, mc.Seed))))
	}
	return matchmaking.New(a.Store, m, a.Bus, opts...), nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		a.Logger.Info("closing " + c.name)
		if err := c.fn(); err != nil {
			a.Logger.Error("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
