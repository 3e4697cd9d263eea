package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-tenant-auth"
)

func TestCryptoPool_BoundsConcurrency(t *testing.T) {
	pool := auth.NewCryptoPool(2)

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := auth.RunCrypto(context.Background(), pool, "test", func() (int, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return 0, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestCryptoPool_ContextCancelled(t *testing.T) {
	pool := auth.NewCryptoPool(1)

	release := make(chan struct{})
	go func() {
		_, _ = auth.RunCrypto(context.Background(), pool, "hold", func() (struct{}, error) {
			<-release
			return struct{}{}, nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := auth.RunCrypto(ctx, pool, "wait", func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestCryptoPool_HashVerifySign(t *testing.T) {
	cfg := testConfig(t)
	hasher := auth.NewPasswordHasher(cfg)

	var observed []string
	var mu sync.Mutex
	pool := auth.NewCryptoPool(2).WithObserver(func(op string, d time.Duration) {
		mu.Lock()
		observed = append(observed, op)
		mu.Unlock()
	})

	ctx := context.Background()
	hash, err := pool.Hash(ctx, hasher, testPassword)
	require.NoError(t, err)
	require.NoError(t, pool.Verify(ctx, hasher, testPassword, hash))
	assert.ErrorIs(t, pool.Verify(ctx, hasher, "nope-nope-nope", hash), auth.ErrMismatchedHashAndPassword)

	tokens := auth.NewTokenService(cfg, nil)
	tok, err := pool.Sign(ctx, tokens.IssueAccess, testSubject())
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, observed, 4)
}
