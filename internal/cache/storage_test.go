package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/storage"
)

type mapCache struct {
	mu       sync.Mutex
	entries  map[string]storage.Mapping
	versions map[string]int64
	gets     int
	failGet  bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]storage.Mapping{}, versions: map[string]int64{}}
}

func (c *mapCache) Get(_ context.Context, code string) (*storage.Mapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet {
		return nil, errors.New("redis down")
	}
	m, ok := c.entries[code]
	if !ok {
		return nil, ErrCacheMiss
	}
	return &m, nil
}

func (c *mapCache) Version(_ context.Context, code string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[code], nil
}

func (c *mapCache) SetIfVersion(_ context.Context, m *storage.Mapping, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[m.Code] != version {
		return ErrStaleFill
	}
	c.entries[m.Code] = *m
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, codes ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range codes {
		delete(c.entries, code)
		c.versions[code]++
	}
	return nil
}

func (c *mapCache) has(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[code]
	return ok
}

func (c *mapCache) Ping(context.Context) error { return nil }
func (c *mapCache) Close() error               { return nil }

// countingStore counts lookups that reach the backing store.
type countingStore struct {
	*storage.MemoryStorage
	lookups int
}

func (s *countingStore) Lookup(ctx context.Context, code string) (*storage.Mapping, error) {
	s.lookups++
	return s.MemoryStorage.Lookup(ctx, code)
}

// pausingStore holds a Lookup of code after the store read until release is closed.
type pausingStore struct {
	*storage.MemoryStorage
	code    string
	read    chan struct{}
	release chan struct{}
}

func (s *pausingStore) Lookup(ctx context.Context, code string) (*storage.Mapping, error) {
	m, err := s.MemoryStorage.Lookup(ctx, code)
	if code == s.code {
		s.code = ""
		close(s.read)
		<-s.release
	}
	return m, err
}

func setup(t *testing.T) (*CachedStorage, *countingStore, *mapCache) {
	t.Helper()
	mem, err := storage.CreateMemoryStorage()
	require.NoError(t, err)

	backing := &countingStore{MemoryStorage: mem}
	c := newMapCache()
	return NewCachedStorage(backing, c, zap.NewNop()), backing, c
}

func seed(t *testing.T, s *CachedStorage, id, code, owner string) {
	t.Helper()
	_, err := s.InsertIfAbsent(context.Background(), storage.Mapping{
		ID: id, Code: code, Destination: "https://" + code + ".example", OwnerID: owner, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestLookup_ReadThrough(t *testing.T) {
	s, backing, c := setup(t)
	ctx := context.Background()
	seed(t, s, "m1", "abc", "alice")

	first, err := s.Lookup(ctx, "abc")
	require.NoError(t, err)
	second, err := s.Lookup(ctx, "abc")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backing.lookups)
	assert.True(t, c.has("abc"))
}

func TestLookup_MissIsNotCached(t *testing.T) {
	s, backing, c := setup(t)

	_, err := s.Lookup(context.Background(), "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Lookup(context.Background(), "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, 2, backing.lookups)
	assert.False(t, c.has("nope"))
}

func TestLookup_CacheFailureFallsBack(t *testing.T) {
	s, backing, c := setup(t)
	seed(t, s, "m1", "abc", "alice")
	c.failGet = true

	m, err := s.Lookup(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://abc.example", m.Destination)
	assert.Equal(t, 1, backing.lookups)
}

func TestUpdate_EvictsOldAndNewCode(t *testing.T) {
	s, _, c := setup(t)
	ctx := context.Background()
	seed(t, s, "m1", "abc", "alice")

	_, err := s.Lookup(ctx, "abc")
	require.NoError(t, err)
	require.True(t, c.has("abc"))

	_, err = s.Update(ctx, "abc", storage.MappingUpdate{Code: "fresh", Destination: "https://new.example", Custom: true}, "alice")
	require.NoError(t, err)
	assert.False(t, c.has("abc"))

	_, err = s.Lookup(ctx, "abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	m, err := s.Lookup(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "https://new.example", m.Destination)
}

func TestUpdate_ForbiddenKeepsCache(t *testing.T) {
	s, _, c := setup(t)
	ctx := context.Background()
	seed(t, s, "m1", "abc", "alice")
	_, _ = s.Lookup(ctx, "abc")

	_, err := s.Update(ctx, "abc", storage.MappingUpdate{Code: "abc", Destination: "https://evil.example"}, "mallory")
	require.ErrorIs(t, err, storage.ErrForbidden)
	assert.True(t, c.has("abc"))
}

func TestDelete_Evicts(t *testing.T) {
	s, _, c := setup(t)
	ctx := context.Background()
	seed(t, s, "m1", "abc", "alice")
	_, _ = s.Lookup(ctx, "abc")

	require.NoError(t, s.Delete(ctx, "abc", "alice"))
	assert.False(t, c.has("abc"))

	_, err := s.Lookup(ctx, "abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteOwner_EvictsEveryCode(t *testing.T) {
	s, _, c := setup(t)
	ctx := context.Background()
	seed(t, s, "m1", "a1", "alice")
	seed(t, s, "m2", "a2", "alice")
	seed(t, s, "m3", "b1", "bob")
	for _, code := range []string{"a1", "a2", "b1"} {
		_, _ = s.Lookup(ctx, code)
	}

	n, err := s.DeleteOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.False(t, c.has("a1"))
	assert.False(t, c.has("a2"))
	assert.True(t, c.has("b1"))
}

func TestLookup_FillRacingEvictionIsDropped(t *testing.T) {
	mem, err := storage.CreateMemoryStorage()
	require.NoError(t, err)
	backing := &pausingStore{
		MemoryStorage: mem,
		code:          "promo",
		read:          make(chan struct{}),
		release:       make(chan struct{}),
	}
	c := newMapCache()
	s := NewCachedStorage(backing, c, zap.NewNop())
	ctx := context.Background()

	_, err = mem.InsertIfAbsent(ctx, storage.Mapping{
		ID: "m1", Code: "promo", Destination: "https://old.example", OwnerID: "alice", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	type result struct {
		m   *storage.Mapping
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := s.Lookup(ctx, "promo")
		done <- result{m, err}
	}()

	<-backing.read
	require.NoError(t, s.Delete(ctx, "promo", "alice"))
	close(backing.release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "https://old.example", res.m.Destination)
	assert.False(t, c.has("promo"))

	_, err = s.Lookup(ctx, "promo")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// a new owner of the code must not inherit the old destination
	_, err = s.InsertIfAbsent(ctx, storage.Mapping{
		ID: "m2", Code: "promo", Destination: "https://new.example", OwnerID: "bob", CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	m, err := s.Lookup(ctx, "promo")
	require.NoError(t, err)
	assert.Equal(t, "https://new.example", m.Destination)
}

func TestNoop(t *testing.T) {
	var c Noop
	ctx := context.Background()
	_, err := c.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrCacheMiss)
	v, err := c.Version(ctx, "x")
	assert.NoError(t, err)
	assert.NoError(t, c.SetIfVersion(ctx, &storage.Mapping{Code: "x"}, v))
	assert.NoError(t, c.Invalidate(ctx, "x"))
}
