package cache

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/metrics"
	"github.com/atinyakov/shortlinks/internal/storage"
)

// CachedStorage serves Lookup from the cache and falls back to the wrapped
// store. Writes go straight to the store and evict the codes they touch;
// a fill is dropped when an eviction happened since its version read.
// Cache failures are logged and never fail the call.
type CachedStorage struct {
	service.Storage
	cache  Cache
	logger *zap.Logger
}

var _ service.Storage = (*CachedStorage)(nil)

func NewCachedStorage(s service.Storage, c Cache, logger *zap.Logger) *CachedStorage {
	return &CachedStorage{Storage: s, cache: c, logger: logger}
}

func (s *CachedStorage) Lookup(ctx context.Context, code string) (*storage.Mapping, error) {
	m, err := s.cache.Get(ctx, code)
	if err == nil {
		metrics.RecordCacheLookup(true)
		return m, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("cache read failed", zap.String("code", code), zap.Error(err))
	}
	metrics.RecordCacheLookup(false)

	// the version is read before the store so that an eviction racing
	// this lookup turns the fill below into a no-op
	version, verErr := s.cache.Version(ctx, code)
	if verErr != nil {
		s.logger.Warn("cache version read failed", zap.String("code", code), zap.Error(verErr))
	}

	m, err = s.Storage.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if verErr != nil {
		return m, nil
	}

	err = s.cache.SetIfVersion(ctx, m, version)
	switch {
	case errors.Is(err, ErrStaleFill):
		s.logger.Debug("skipping stale cache fill", zap.String("code", code))
	case err != nil:
		s.logger.Warn("cache write failed", zap.String("code", code), zap.Error(err))
	}
	return m, nil
}

func (s *CachedStorage) Update(ctx context.Context, code string, upd storage.MappingUpdate, callerID string) (*storage.Mapping, error) {
	m, err := s.Storage.Update(ctx, code, upd, callerID)
	if err != nil {
		return nil, err
	}

	s.evict(ctx, code, m.Code)
	return m, nil
}

func (s *CachedStorage) Delete(ctx context.Context, code string, callerID string) error {
	if err := s.Storage.Delete(ctx, code, callerID); err != nil {
		return err
	}

	s.evict(ctx, code)
	return nil
}

func (s *CachedStorage) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	owned, err := s.Storage.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	deleted, err := s.Storage.DeleteOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	s.evict(ctx, lo.Map(owned, func(m storage.Mapping, _ int) string { return m.Code })...)
	return deleted, nil
}

func (s *CachedStorage) Close() error {
	cacheErr := s.cache.Close()
	if err := s.Storage.Close(); err != nil {
		return err
	}
	return cacheErr
}

func (s *CachedStorage) evict(ctx context.Context, codes ...string) {
	if err := s.cache.Invalidate(ctx, lo.Uniq(codes)...); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Strings("codes", codes), zap.Error(err))
	}
}
