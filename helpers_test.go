package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/cache"
	"github.com/goliatone/go-tenant-auth/repository"
)

const (
	testSigningKey     = "test-signing-key-that-is-long-enough-for-hs256"
	testOperatorSecret = "operator-secret"
	testPassword       = "correct-horse-42"
)

// testConfig returns a config with cheap hashing parameters.
func testConfig(t *testing.T) *auth.Config {
	t.Helper()
	cfg := auth.DefaultConfig(testSigningKey)
	cfg.ArgonTime = 1
	cfg.ArgonMemoryKiB = 1024
	cfg.BcryptCost = bcrypt.MinCost
	cfg.CacheDir = t.TempDir()
	cfg.RefreshCookieSecure = false
	cfg.OperatorSecret = testOperatorSecret
	return cfg
}

// MockLogger implements auth.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Events() []auth.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEvent, len(c.events))
	copy(out, c.events)
	return out
}

// testEnv is a fully wired service over an in-memory sqlite database and
// a bolt cache in a temp dir.
type testEnv struct {
	cfg      *auth.Config
	repo     *repository.Manager
	store    *cache.BoltStore
	resolver *auth.Resolver
	tokens   *auth.TokenService
	sessions *auth.Sessions
	invites  *auth.InvitationGate
	svc      *auth.Service
	sink     *capturingSink
	activity *auth.ActivityDispatcher
	tenantA  *auth.Tenant
	tenantB  *auth.Tenant
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig(t)

	db, err := repository.Open(repository.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(ctx, db))

	repo := repository.NewManager(db)
	t.Cleanup(func() { _ = repo.Close() })

	store, err := cache.OpenBolt(cache.BoltOptions{Dir: cfg.CacheDir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := auth.NewNopLogger()

	resolver := auth.NewResolver(repo.Users(), repo.Memberships(), repo.Tenants()).
		WithLogger(logger).
		WithIdentityTx(repo.IdentityTx).
		WithLookupCache(store, cfg.LookupCacheTTL)
	tokens := auth.NewTokenService(cfg, logger)
	sessions := auth.NewSessions(repo.Sessions(), logger)
	invites := auth.NewInvitationGate(store, cfg.InvitationTTL, logger)

	sink := &capturingSink{}
	activity := auth.NewActivityDispatcher(sink, 64, logger)
	activity.Start()
	t.Cleanup(func() { _ = activity.Stop(context.Background()) })

	svc := auth.NewService(cfg, resolver, sessions, tokens, invites).
		WithLogger(logger).
		WithActivity(activity)

	tenantA, err := resolver.CreateTenant(ctx, "acme", "")
	require.NoError(t, err)
	tenantB, err := resolver.CreateTenant(ctx, "globex", "")
	require.NoError(t, err)

	return &testEnv{
		cfg:      cfg,
		repo:     repo,
		store:    store,
		resolver: resolver,
		tokens:   tokens,
		sessions: sessions,
		invites:  invites,
		svc:      svc,
		sink:     sink,
		activity: activity,
		tenantA:  tenantA,
		tenantB:  tenantB,
	}
}

func inTenant(t *auth.Tenant) context.Context {
	return auth.WithTenant(context.Background(), t.ID)
}

// asPrincipal returns a tenant context carrying the principal of res.
func asPrincipal(res *auth.AuthResult) context.Context {
	ctx := auth.WithTenant(context.Background(), res.TenantID)
	return auth.WithPrincipal(ctx, &auth.Principal{
		UserID:   res.UserID,
		TenantID: res.TenantID,
		Role:     res.Role,
	})
}

func (e *testEnv) register(t *testing.T, tenant *auth.Tenant, username, email, password string) *auth.AuthResult {
	t.Helper()
	res, err := e.svc.Register(inTenant(tenant), auth.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) invitation(t *testing.T) string {
	t.Helper()
	code, err := e.svc.IssueInvitation(auth.WithOperator(context.Background()))
	require.NoError(t, err)
	return code
}
