package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/config"
	"github.com/studyhub/groupmatch/internal/application/matchmaking"
	"github.com/studyhub/groupmatch/internal/infrastructure/messaging"
	rediscache "github.com/studyhub/groupmatch/internal/infrastructure/persistence/redis"
	"github.com/studyhub/groupmatch/internal/interface/http/handlers"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{
			Name:            "groupmatch-test",
			Environment:     config.EnvDevelopment,
			Version:         "test",
			Location:        time.UTC,
			ConnectAttempts: 1,
		},
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			URL:    filepath.Join(t.TempDir(), "app.db"),
		},
		Redis: config.RedisConfig{
			DialTimeout:  time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			Channel:      "groupmatch:test",
			UserCacheTTL: time.Minute,
		},
		Matchmaking: config.MatchmakingConfig{
			Schedule:      "1m",
			CourseTimeout: 5 * time.Second,
			LockTTL:       time.Minute,
			Seed:          99,
		},
		Observability: config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"},
	}
}

func TestOpenWithoutRedis(t *testing.T) {
	cfg := testConfig(t)
	app, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	assert.Nil(t, app.Cache)
	assert.IsType(t, &matchmaking.LocalLocker{}, app.Locker)
	assert.IsType(t, &messaging.InMemoryEventBus{}, app.Bus)

	status := app.Health.Check(context.Background())
	assert.True(t, status.Healthy)

	orch, err := app.NewOrchestrator()
	require.NoError(t, err)
	report, err := orch.RunAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Courses)
}

func TestOpenWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	app, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)

	require.NotNil(t, app.Cache)
	assert.IsType(t, &rediscache.CourseLocker{}, app.Locker)
	assert.IsType(t, &rediscache.UserCache{}, app.Directory)
	assert.IsType(t, &messaging.RedisEventBus{}, app.Bus)

	status := app.Health.Check(context.Background())
	assert.Equal(t, handlers.StatusOK, status.Status)
	assert.Contains(t, status.Checks, "user_cache")

	release, err := app.Locker.TryLock(context.Background(), "course-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(rediscache.CourseLockKey("course-1")))
	release()

	require.NoError(t, app.Close())
	assert.NoError(t, app.Close())
}

func TestOpenFailsOnUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = addr

	_, err := Open(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, rediscache.ErrCacheConnection)
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"

	_, err := Open(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestOpenStoreRejectsMalformedPostgresURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = config.DriverPostgres
	cfg.Database.URL = "postgres://%zz"

	_, err := OpenStore(context.Background(), cfg.Database, 1, zap.NewNop())
	assert.ErrorContains(t, err, "invalid DATABASE_URL")
}
