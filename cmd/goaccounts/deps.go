package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	goAccounts "github.com/MrEthical07/goAccounts"
	"github.com/MrEthical07/goAccounts/internal/app"
	"github.com/MrEthical07/goAccounts/store/memory"
	"github.com/MrEthical07/goAccounts/store/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// deps holds what the engine was built from so commands can close it.
type deps struct {
	engine   *goAccounts.Engine
	postgres *postgres.Store
	redis    *redis.Client
	embedded *miniredis.Miniredis
	closers  []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func (d *deps) users() (goAccounts.UserStore, error) {
	if d.postgres != nil {
		return d.postgres, nil
	}
	return nil, errors.New("token issue needs DATABASE_URL to look the user up")
}

func openDeps(ctx context.Context, s settings, log *zap.Logger) (*deps, error) {
	cfg, err := s.engineConfig()
	if err != nil {
		return nil, err
	}

	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	var users goAccounts.UserStore
	if s.DatabaseURL != "" {
		store, err := postgres.Open(ctx, s.DatabaseURL, postgres.Options{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		}, log.Named("postgres"))
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = store.Close() })
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		d.postgres = store
		users = store
	} else {
		log.Warn("DATABASE_URL not set; users are kept in memory and lost on exit")
		store, err := memory.New()
		if err != nil {
			return nil, err
		}
		users = store
	}

	addr := s.RedisAddr
	if s.EmbeddedRedis {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		d.closers = append(d.closers, mr.Close)
		d.embedded = mr
		addr = mr.Addr()
		log.Warn("using embedded redis; sessions are lost on exit", zap.String("addr", addr))
	}
	if addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		d.closers = append(d.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", addr, err)
		}
		d.redis = client
	}

	b := app.Subscribe(goAccounts.New(), log.Named("app")).
		WithConfig(cfg).
		WithUserStore(users).
		WithLogger(log.Named("accounts"))
	if d.redis != nil {
		b.WithRedis(d.redis)
	}
	engine, err := b.Build()
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, engine.Close)
	d.engine = engine

	ok = true
	return d, nil
}
