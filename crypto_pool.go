package auth

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// CryptoPool runs password hashing and token signing off the caller's
// goroutine, with at most n jobs in flight. Callers block until a slot is
// free or ctx is done.
type CryptoPool struct {
	sem      *semaphore.Weighted
	observer func(op string, d time.Duration)
}

// NewCryptoPool returns a pool admitting n concurrent jobs.
func NewCryptoPool(n int) *CryptoPool {
	if n < 1 {
		n = 1
	}
	return &CryptoPool{
		sem:      semaphore.NewWeighted(int64(n)),
		observer: func(string, time.Duration) {},
	}
}

// WithObserver sets a callback receiving the duration of each job.
func (p *CryptoPool) WithObserver(fn func(op string, d time.Duration)) *CryptoPool {
	if fn != nil {
		p.observer = fn
	}
	return p
}

type poolResult[T any] struct {
	val T
	err error
}

// RunCrypto executes fn in the pool under the label op.
func RunCrypto[T any](ctx context.Context, p *CryptoPool, op string, fn func() (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan poolResult[T], 1)
	go func() {
		defer p.sem.Release(1)
		start := time.Now()
		v, err := fn()
		p.observer(op, time.Since(start))
		done <- poolResult[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Hash hashes password with h inside the pool.
func (p *CryptoPool) Hash(ctx context.Context, h PasswordHasher, password string) (string, error) {
	return RunCrypto(ctx, p, "hash", func() (string, error) {
		return h.HashPassword(password)
	})
}

// Verify compares password against hash inside the pool.
func (p *CryptoPool) Verify(ctx context.Context, h PasswordHasher, password, hash string) error {
	_, err := RunCrypto(ctx, p, "verify", func() (struct{}, error) {
		return struct{}{}, h.ComparePasswordAndHash(password, hash)
	})
	return err
}

// Sign runs a token issuance inside the pool.
func (p *CryptoPool) Sign(ctx context.Context, issue func(TokenSubject) (IssuedToken, error), sub TokenSubject) (IssuedToken, error) {
	return RunCrypto(ctx, p, "sign", func() (IssuedToken, error) {
		return issue(sub)
	})
}
