// Package cache implements a generic expiring key value cache on top of a
// pluggable byte store.
//
// The cache is an optimization: storage and codec failures are logged and
// read as misses, so callers must always be able to fall back to their
// primary store. Expired entries are removed lazily, on the first read
// after their expiry.
package cache

import (
	"context"
	"time"
)

// Result labels passed to an Observer.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultExpired = "expired"
	ResultError   = "error"
)

// Observer receives the outcome of every read.
type Observer func(name, result string)

type settings struct {
	name     string
	prefix   string
	logger   Logger
	now      func() time.Time
	observer Observer
}

// Option configures a Cache.
type Option func(*settings)

// WithName labels the cache in logs and observer callbacks.
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(s *settings) {
		s.prefix = prefix
	}
}

// WithLogger sets the logger used to report swallowed failures.
func WithLogger(logger Logger) Option {
	return func(s *settings) {
		s.logger = normalizeLogger(logger)
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithObserver registers a read outcome callback, e.g. for metrics.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		s.observer = o
	}
}

// Cache is a typed view over a Store.
type Cache[T any] struct {
	store Store
	settings
}

// New creates a typed cache backed by store.
func New[T any](store Store, opts ...Option) *Cache[T] {
	s := settings{
		name:   "cache",
		logger: nopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return &Cache[T]{store: store, settings: s}
}

// Set stores value with an absolute expiry of now+ttl. Expiry has second
// resolution and is rounded up, so any positive ttl, sub-second ones
// included, keeps the value readable for at least ttl and less than
// ttl+1s.
func (c *Cache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	raw, err := encodeItem(NewItem(value, c.now(), ttl))
	if err != nil {
		c.logger.Error("cache encode failed", "cache", c.name, "key", key, "error", err)
		return err
	}

	if err := c.store.Put(ctx, c.key(key), raw, ttl); err != nil {
		c.logger.Error("cache write failed", "cache", c.name, "key", key, "error", err)
		return err
	}

	return nil
}

// Get returns the value for key if it has not expired. Expired and
// undecodable entries are deleted.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T

	raw, ok, err := c.store.Get(ctx, c.key(key))
	if err != nil {
		c.logger.Error("cache read failed", "cache", c.name, "key", key, "error", err)
		c.observe(ResultError)
		return zero, false
	}

	if !ok {
		c.observe(ResultMiss)
		return zero, false
	}

	item, err := decodeItem[T](raw)
	if err != nil {
		c.logger.Warn("discarding undecodable cache entry", "cache", c.name, "key", key, "error", err)
		c.Delete(ctx, key)
		c.observe(ResultError)
		return zero, false
	}

	if item.Expired(c.now()) {
		c.Delete(ctx, key)
		c.observe(ResultExpired)
		return zero, false
	}

	c.observe(ResultHit)
	return item.Value, true
}

// Take returns the value for key and removes it in the same store
// operation, so at most one caller observes a given entry.
func (c *Cache[T]) Take(ctx context.Context, key string) (T, bool) {
	var zero T

	raw, ok, err := c.store.Take(ctx, c.key(key))
	if err != nil {
		c.logger.Error("cache take failed", "cache", c.name, "key", key, "error", err)
		c.observe(ResultError)
		return zero, false
	}

	if !ok {
		c.observe(ResultMiss)
		return zero, false
	}

	item, err := decodeItem[T](raw)
	if err != nil {
		c.logger.Warn("discarding undecodable cache entry", "cache", c.name, "key", key, "error", err)
		c.observe(ResultError)
		return zero, false
	}

	if item.Expired(c.now()) {
		c.observe(ResultExpired)
		return zero, false
	}

	c.observe(ResultHit)
	return item.Value, true
}

// Delete removes key unconditionally.
func (c *Cache[T]) Delete(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, c.key(key)); err != nil {
		c.logger.Error("cache delete failed", "cache", c.name, "key", key, "error", err)
	}
}

func (c *Cache[T]) key(k string) string {
	return c.prefix + k
}

func (c *Cache[T]) observe(result string) {
	if c.observer != nil {
		c.observer(c.name, result)
	}
}
