package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"omrzen/internal/app"
	"omrzen/internal/config"
	"omrzen/internal/domain"
	"omrzen/internal/infra/memory"
	"omrzen/internal/infra/postgres"
	infraredis "omrzen/internal/infra/redis"
	"omrzen/internal/infra/sqlite"
	"omrzen/internal/logger"
)

// runtime is everything a command needs: config, logger and a loaded TestService.
type runtime struct {
	cfg     config.Config
	log     zerolog.Logger
	service *app.TestService
	closers []func() error
}

func openRuntime(ctx context.Context, configPath string, logOut io.Writer) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.Setup(logOut, cfg.Log.Level, cfg.Log.Format)

	rt := &runtime{cfg: cfg, log: log}
	fields, err := rt.openFieldStore(ctx)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	store := app.NewSessionStore(fields, cfg.Bounds())
	rt.service = app.NewTestService(store,
		app.WithTickInterval(config.DurationOr(cfg.Test.TickInterval, time.Second)),
		app.WithLogger(log),
	)
	if _, err := rt.service.Load(ctx); err != nil && !errors.Is(err, domain.ErrNotFound) {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) openFieldStore(ctx context.Context) (app.FieldStore, error) {
	cfg := rt.cfg
	log := rt.log.With().Str("backend", cfg.Storage.Backend).Logger()

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		log.Debug().Msg("using in-memory storage; the session ends with the process")
		return memory.NewSessionStore(), nil

	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, store.Close)
		log.Debug().Str("path", cfg.Storage.Path).Msg("opened sqlite storage")
		return store, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("%w: redis %s: %v", domain.ErrStorageUnavailable, cfg.Redis.Addr, err)
		}
		ttl := config.DurationOr(cfg.Redis.TTL, 30*24*time.Hour)
		return infraredis.NewSessionStore(client, cfg.Redis.Prefix, ttl), nil

	case config.BackendPostgres:
		applied, err := postgres.Migrate(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		if len(applied) > 0 {
			log.Info().Strs("migrations", applied).Msg("migrations applied")
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: postgres: %v", domain.ErrStorageUnavailable, err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		return postgres.NewSessionStore(pool), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// Close stops the countdown and releases storage connections.
func (rt *runtime) Close() error {
	if rt.service != nil {
		rt.service.StopTimer()
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
