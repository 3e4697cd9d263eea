package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-tenant-auth/cache"
)

// cachedUser is the subset of a User safe to keep in the lookup cache.
// Password hashes are never cached.
type cachedUser struct {
	ID        uuid.UUID  `msgpack:"id"`
	Username  string     `msgpack:"username"`
	Email     string     `msgpack:"email"`
	CreatedAt time.Time  `msgpack:"created_at"`
	UpdatedAt time.Time  `msgpack:"updated_at"`
	DeletedAt *time.Time `msgpack:"deleted_at"`
}

func toCachedUser(u *User) cachedUser {
	return cachedUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		DeletedAt: u.DeletedAt,
	}
}

func (c cachedUser) user() *User {
	return &User{
		ID:        c.ID,
		Username:  c.Username,
		Email:     c.Email,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		DeletedAt: c.DeletedAt,
	}
}

type cachedTenant struct {
	ID          uuid.UUID `msgpack:"id"`
	Name        string    `msgpack:"name"`
	Description string    `msgpack:"description"`
	CreatedAt   time.Time `msgpack:"created_at"`
}

func toCachedTenant(t *Tenant) cachedTenant {
	return cachedTenant{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
}

func (c cachedTenant) tenant() *Tenant {
	return &Tenant{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
}

// Resolver owns identities, tenants and memberships. Reads by id, tenant
// lookups and role lookups go through an optional read-through cache which
// every write invalidates. Sessions are never cached.
type Resolver struct {
	users       UserStore
	memberships MembershipStore
	tenants     TenantStore
	identityTx  IdentityTxFunc
	userCache   *cache.Cache[cachedUser]
	roleCache   *cache.Cache[[]string]
	tenantCache *cache.Cache[cachedTenant]
	cacheTTL    time.Duration
	logger      Logger
}

// NewResolver creates a Resolver without a lookup cache.
func NewResolver(users UserStore, memberships MembershipStore, tenants TenantStore) *Resolver {
	return &Resolver{
		users:       users,
		memberships: memberships,
		tenants:     tenants,
		logger:      defLogger{},
	}
}

// WithLogger sets the logger.
func (r *Resolver) WithLogger(logger Logger) *Resolver {
	r.logger = normalizeLogger(logger)
	return r
}

// WithIdentityTx makes CreateMember write the identity and its first
// membership inside one transaction.
func (r *Resolver) WithIdentityTx(tx IdentityTxFunc) *Resolver {
	r.identityTx = tx
	return r
}

// WithLookupCache enables read-through caching of users by id, of tenants
// by id and name, and of roles per (user, tenant), stored in store for ttl.
func (r *Resolver) WithLookupCache(store cache.Store, ttl time.Duration, opts ...cache.Option) *Resolver {
	if store == nil || ttl <= 0 {
		return r
	}
	base := append([]cache.Option{cache.WithLogger(r.logger)}, opts...)
	r.userCache = cache.New[cachedUser](store, append(base, cache.WithName("users"), cache.WithPrefix("user:"))...)
	r.roleCache = cache.New[[]string](store, append(base, cache.WithName("roles"), cache.WithPrefix("roles:"))...)
	r.tenantCache = cache.New[cachedTenant](store, append(base, cache.WithName("tenants"), cache.WithPrefix("tenant:"))...)
	r.cacheTTL = ttl
	return r
}

func roleKey(userID, tenantID uuid.UUID) string {
	return userID.String() + ":" + tenantID.String()
}

func tenantIDKey(id uuid.UUID) string { return "id:" + id.String() }

func tenantNameKey(name string) string { return "name:" + name }

// UserByID returns the active identity with id. The returned user has no
// password hash when served from cache.
func (r *Resolver) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if r.userCache != nil {
		if cu, ok := r.userCache.Get(ctx, id.String()); ok {
			return cu.user(), nil
		}
	}

	user, err := r.users.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}

	if r.userCache != nil {
		_ = r.userCache.Set(ctx, id.String(), toCachedUser(user), r.cacheTTL)
	}
	return user, nil
}

// UserForUpdate reads id straight from the store, hash included.
func (r *Resolver) UserForUpdate(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.users.GetByID(ctx, id, false)
}

// FindForLogin resolves identifier as an email when it contains "@",
// otherwise as a username. Soft-deleted identities are never returned.
func (r *Resolver) FindForLogin(ctx context.Context, identifier string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrIdentityNotFound
	}
	if strings.Contains(identifier, "@") {
		return r.users.GetByEmail(ctx, NormalizeEmail(identifier), false)
	}
	return r.users.GetByUsername(ctx, identifier, false)
}

// MatchKind classifies the identity found for a registration.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchByEmail
	MatchByUsername
)

// FindForRegistration looks up an identity by normalized email, then by
// username, soft-deleted rows included. It returns a nil user and
// MatchNone when nothing matches.
func (r *Resolver) FindForRegistration(ctx context.Context, username, email string) (*User, MatchKind, error) {
	user, err := r.users.GetByEmail(ctx, NormalizeEmail(email), true)
	switch {
	case err == nil:
		return user, MatchByEmail, nil
	case !IsNotFound(err):
		return nil, MatchNone, err
	}

	user, err = r.users.GetByUsername(ctx, username, true)
	switch {
	case err == nil:
		return user, MatchByUsername, nil
	case IsNotFound(err):
		return nil, MatchNone, nil
	default:
		return nil, MatchNone, err
	}
}

// CreateMember persists a new identity together with its first membership.
// With an identity transaction configured both rows commit or roll back
// together; otherwise they are written one after the other.
func (r *Resolver) CreateMember(ctx context.Context, user *User, tenantID uuid.UUID, role string) (*User, error) {
	user.Email = NormalizeEmail(user.Email)
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	role = NormalizeRole(role)

	var created *User
	write := func(ctx context.Context, users UserStore, memberships MembershipStore) error {
		u, err := users.Create(ctx, user)
		if err != nil {
			return err
		}
		if _, err := memberships.Add(ctx, u.ID, tenantID, role); err != nil {
			return err
		}
		created = u
		return nil
	}

	var err error
	if r.identityTx != nil {
		err = r.identityTx(ctx, write)
	} else {
		err = write(ctx, r.users, r.memberships)
	}
	if err != nil {
		return nil, err
	}

	r.invalidateRoles(ctx, created.ID, tenantID)
	return created, nil
}

// RestoreUser clears the delete marker of id and replaces its credential.
func (r *Resolver) RestoreUser(ctx context.Context, id uuid.UUID, passwordHash string) (*User, error) {
	user, err := r.users.Restore(ctx, id, passwordHash)
	r.invalidateUser(ctx, id)
	return user, err
}

// UpdatePassword replaces the stored credential of id.
func (r *Resolver) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	err := r.users.UpdatePassword(ctx, id, passwordHash)
	r.invalidateUser(ctx, id)
	return err
}

// SoftDelete hides id from normal lookups.
func (r *Resolver) SoftDelete(ctx context.Context, id uuid.UUID) error {
	err := r.users.SoftDelete(ctx, id)
	r.invalidateUser(ctx, id)
	return err
}

// RolesInTenant returns the roles userID holds in tenantID, oldest first.
// An empty result means no membership.
func (r *Resolver) RolesInTenant(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error) {
	key := roleKey(userID, tenantID)
	if r.roleCache != nil {
		if roles, ok := r.roleCache.Get(ctx, key); ok {
			return roles, nil
		}
	}

	roles, err := r.memberships.RolesInTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	if r.roleCache != nil && len(roles) > 0 {
		_ = r.roleCache.Set(ctx, key, roles, r.cacheTTL)
	}
	return roles, nil
}

// AllMemberships lists every (tenant, role) held by userID.
func (r *Resolver) AllMemberships(ctx context.Context, userID uuid.UUID) ([]UserTenant, error) {
	return r.memberships.ListByUser(ctx, userID)
}

// AddMembership grants role in tenantID. It reports false without error
// when the membership already exists.
func (r *Resolver) AddMembership(ctx context.Context, userID, tenantID uuid.UUID, role string) (bool, error) {
	defer r.invalidateRoles(ctx, userID, tenantID)

	if _, err := r.memberships.Add(ctx, userID, tenantID, NormalizeRole(role)); err != nil {
		if IsDuplicateRecord(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Tenant returns the active tenant with id.
func (r *Resolver) Tenant(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	if r.tenantCache != nil {
		if ct, ok := r.tenantCache.Get(ctx, tenantIDKey(id)); ok {
			return ct.tenant(), nil
		}
	}

	tenant, err := r.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cacheTenant(ctx, tenant)
	return tenant, nil
}

// TenantByName returns the active tenant named name.
func (r *Resolver) TenantByName(ctx context.Context, name string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if r.tenantCache != nil {
		if ct, ok := r.tenantCache.Get(ctx, tenantNameKey(name)); ok {
			return ct.tenant(), nil
		}
	}

	tenant, err := r.tenants.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	r.cacheTenant(ctx, tenant)
	return tenant, nil
}

// CreateTenant persists a new tenant and primes the lookup cache with it.
func (r *Resolver) CreateTenant(ctx context.Context, name, description string) (*Tenant, error) {
	tenant, err := r.tenants.Create(ctx, &Tenant{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(name),
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	r.cacheTenant(ctx, tenant)
	return tenant, nil
}

// cacheTenant stores t under both its id and its name. Misses are never
// cached, so a tenant created elsewhere becomes visible on the next read.
func (r *Resolver) cacheTenant(ctx context.Context, t *Tenant) {
	if r.tenantCache == nil || t == nil {
		return
	}
	ct := toCachedTenant(t)
	_ = r.tenantCache.Set(ctx, tenantIDKey(t.ID), ct, r.cacheTTL)
	_ = r.tenantCache.Set(ctx, tenantNameKey(t.Name), ct, r.cacheTTL)
}

func (r *Resolver) invalidateUser(ctx context.Context, id uuid.UUID) {
	if r.userCache != nil {
		r.userCache.Delete(ctx, id.String())
	}
}

func (r *Resolver) invalidateRoles(ctx context.Context, userID, tenantID uuid.UUID) {
	if r.roleCache != nil {
		r.roleCache.Delete(ctx, roleKey(userID, tenantID))
	}
}
