package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/config"
	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/infrastructure/persistence/postgres"
	rediscache "github.com/studyhub/groupmatch/internal/infrastructure/persistence/redis"
	"github.com/studyhub/groupmatch/internal/infrastructure/persistence/sqlite"
	"github.com/studyhub/groupmatch/pkg/retry"
)

// OpenStore opens the configured store and brings its schema up to date.
// Postgres is dialed with backoff so the service can start before the
// database accepts connections.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, attempts int, log *zap.Logger) (uow.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.URL)
		if err != nil {
			return nil, err
		}
		log.Info("sqlite store opened", zap.String("path", cfg.URL))
		return s, nil

	case config.DriverPostgres:
		if _, err := pgxpool.ParseConfig(cfg.URL); err != nil {
			return nil, fmt.Errorf("postgres: invalid DATABASE_URL: %w", err)
		}
		opts := postgres.PoolOptions{
			MaxConns:          int32(cfg.MaxConns),
			MinConns:          int32(cfg.MinConns),
			MaxConnLifetime:   cfg.ConnMaxLifetime,
			MaxConnIdleTime:   cfg.ConnMaxIdleTime,
			HealthCheckPeriod: time.Minute,
		}
		conn, err := retry.Value(ctx, retry.Startup(attempts, log, "postgres connect"),
			func(ctx context.Context) (*postgres.Connection, error) {
				return postgres.NewConnection(ctx, cfg.URL, opts)
			})
		if err != nil {
			return nil, err
		}
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		log.Info("postgres store ready")
		return postgres.NewStore(conn), nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// ConnectRedis dials Redis with backoff.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, attempts int, log *zap.Logger) (*rediscache.Cache, error) {
	rc := rediscache.Config{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   3,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	cache, err := retry.Value(ctx, retry.Startup(attempts, log, "redis connect"),
		func(ctx context.Context) (*rediscache.Cache, error) {
			return rediscache.NewCache(ctx, rc)
		})
	if err != nil {
		return nil, err
	}
	log.Info("redis connected", zap.String("addr", cfg.Addr))
	return cache, nil
}
