package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const boltFileName = "cache.db"

var boltBucket = []byte("ttl_cache")

// DefaultLockTimeout bounds how long OpenBolt waits for the file lock
// held by another process.
const DefaultLockTimeout = 2 * time.Second

// BoltOptions configures a local bbolt store.
type BoltOptions struct {
	Dir         string
	LockTimeout time.Duration
	Logger      Logger
}

// BoltStore is a single node Store persisted in a bbolt file.
type BoltStore struct {
	db     *bolt.DB
	dir    string
	logger Logger
	once   sync.Once
}

var _ Store = (*BoltStore)(nil)

// OpenBolt opens (or creates) the store under opts.Dir. A file that bbolt
// rejects as corrupt (bad magic, version or checksum) is discarded: the
// directory is removed and opening is retried once. A lock still held when
// LockTimeout elapses belongs to a live process and is returned as
// bolt.ErrTimeout without touching the directory.
func OpenBolt(opts BoltOptions) (*BoltStore, error) {
	if opts.Dir == "" {
		return nil, errors.New("cache: bolt directory is required")
	}

	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}

	logger := normalizeLogger(opts.Logger)

	db, err := openBoltFile(opts.Dir, opts.LockTimeout)
	if err != nil {
		if !isCorrupt(err) {
			return nil, fmt.Errorf("open cache store: %w", err)
		}

		logger.Warn("cache store is corrupt, recreating store", "dir", opts.Dir, "error", err)

		if err := os.RemoveAll(opts.Dir); err != nil {
			return nil, fmt.Errorf("remove corrupt cache store: %w", err)
		}

		if db, err = openBoltFile(opts.Dir, opts.LockTimeout); err != nil {
			return nil, fmt.Errorf("reopen cache store: %w", err)
		}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache bucket: %w", err)
	}

	return &BoltStore{db: db, dir: opts.Dir, logger: logger}, nil
}

func openBoltFile(dir string, timeout time.Duration) (*bolt.DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return bolt.Open(filepath.Join(dir, boltFileName), 0o600, &bolt.Options{Timeout: timeout})
}

// isCorrupt reports whether err means the file on disk cannot be used.
// bolt.ErrTimeout is not one of them: flock is released by the kernel
// when its holder exits, so a lock that times out has a live owner.
func isCorrupt(err error) bool {
	return errors.Is(err, bolt.ErrInvalid) ||
		errors.Is(err, bolt.ErrVersionMismatch) ||
		errors.Is(err, bolt.ErrChecksum)
}

// Dir returns the directory backing the store.
func (s *BoltStore) Dir() string {
	return s.dir
}

func (s *BoltStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *BoltStore) Put(_ context.Context, key string, value []byte, _ time.Duration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), value)
	})
}

func (s *BoltStore) Take(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return b.Delete([]byte(key))
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *BoltStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
}

// Ping runs a read transaction against the bucket.
func (s *BoltStore) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(boltBucket) == nil {
			return errors.New("cache: bucket missing")
		}
		return nil
	})
}

func (s *BoltStore) Flush() error {
	return s.db.Sync()
}

// Close flushes and releases the file lock. It is safe to call twice.
func (s *BoltStore) Close() error {
	var err error
	s.once.Do(func() {
		if syncErr := s.db.Sync(); syncErr != nil {
			s.logger.Warn("cache flush before close failed", "error", syncErr)
		}
		err = s.db.Close()
	})
	return err
}
