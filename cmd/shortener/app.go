package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/app/server"
	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/cache"
	"github.com/atinyakov/shortlinks/internal/config"
	"github.com/atinyakov/shortlinks/internal/geo"
	"github.com/atinyakov/shortlinks/internal/repository"
	"github.com/atinyakov/shortlinks/internal/storage"
	"github.com/atinyakov/shortlinks/internal/worker"
)

// app holds the wired components of one server process.
type app struct {
	store   service.Storage
	clicks  *worker.ClickWorker
	service *service.URLService
	auth    *service.Auth
	handler http.Handler
}

// openStorage picks the backend: Postgres when a DSN is set, SQLite when a
// file path is set, memory otherwise.
func openStorage(ctx context.Context, opts *config.Options, log *zap.Logger) (service.Storage, error) {
	repo, err := repository.Open(ctx, opts.DatabaseDSN, opts.FilePath, log)
	if errors.Is(err, repository.ErrNoDatabase) {
		log.Info("using in memory storage")
		return storage.CreateMemoryStorage()
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func withCache(ctx context.Context, s service.Storage, opts *config.Options, log *zap.Logger) (service.Storage, error) {
	if opts.RedisAddr == "" {
		return s, nil
	}

	c, err := cache.NewRedisCache(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisCacheTTL, log)
	if err != nil {
		return nil, err
	}

	log.Info("lookup cache enabled", zap.String("redis", opts.RedisAddr))
	return cache.NewCachedStorage(s, c, log), nil
}

func newApp(ctx context.Context, opts *config.Options, log *zap.Logger) (*app, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	store, err := openStorage(ctx, opts, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	cached, err := withCache(ctx, store, opts, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}
	store = cached

	locator := geo.New(opts.GeoEndpoint, opts.GeoTimeout, geo.DefaultCacheTTL, log)

	clicks := worker.NewClickWorker(log, store, locator, worker.Options{
		QueueSize:     opts.ClickQueueSize,
		BatchSize:     opts.ClickBatchSize,
		FlushInterval: opts.ClickFlushInterval,
		GeoTimeout:    opts.GeoTimeout,
	})
	clicks.Start()

	allocator := service.NewAllocator(store, service.RandomGenerator{}, opts.CodeLength, opts.MaxAttempts, log)
	resolver := service.NewURLResolver(store, clicks, log)
	svc := service.NewURL(store, allocator, resolver, log, opts.ResultHostname)
	auth := service.NewAuth(opts.JWTSecret)

	return &app{
		store:   store,
		clicks:  clicks,
		service: svc,
		auth:    auth,
		handler: server.Init(svc, auth, log, opts.TrustedSubnet),
	}, nil
}

// close flushes pending clicks before the store goes away.
func (a *app) close(ctx context.Context) error {
	return errors.Join(a.clicks.Stop(ctx), a.store.Close())
}
