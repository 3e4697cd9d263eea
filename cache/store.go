package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidTTL is returned by Set when the ttl is not positive.
var ErrInvalidTTL = errors.New("cache: ttl must be positive")

// ErrStoreClosed is returned by stores after Close.
var ErrStoreClosed = errors.New("cache: store closed")

// Store is a flat key to bytes store. Implementations serialize their
// own writes so they can be shared by concurrent callers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores value under key. ttl is a hint for backends with native
	// expiry, the envelope expiry is what reads enforce.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Take reads and removes key in one step.
	Take(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	// Flush persists pending writes.
	Flush() error
	Close() error
}

// Logger is the logging contract used by the cache package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
