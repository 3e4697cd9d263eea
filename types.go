package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Logger is the leveled logger used across the package. args are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity holds the attributes of an authenticated principal
type Identity interface {
	ID() string
	Username() string
	Email() string
}

// DeviceMeta describes the client a credential was issued to.
type DeviceMeta struct {
	UserAgent string
	IP        string
}

// UserStore persists identities. Lookups exclude soft-deleted rows
// unless includeDeleted is set.
type UserStore interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*User, error)
	GetByEmail(ctx context.Context, email string, includeDeleted bool) (*User, error)
	GetByUsername(ctx context.Context, username string, includeDeleted bool) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID, passwordHash string) (*User, error)
}

// MembershipStore persists (user, tenant, role) rows.
type MembershipStore interface {
	Add(ctx context.Context, userID, tenantID uuid.UUID, role string) (*UserTenant, error)
	// RolesInTenant returns the roles held in tenantID, oldest first.
	RolesInTenant(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]UserTenant, error)
}

// IdentityTxFunc runs fn with user and membership stores bound to a single
// transaction. The transaction commits when fn returns nil.
type IdentityTxFunc func(ctx context.Context, fn func(ctx context.Context, users UserStore, memberships MembershipStore) error) error

// TenantStore resolves tenants.
type TenantStore interface {
	Create(ctx context.Context, tenant *Tenant) (*Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetByName(ctx context.Context, name string) (*Tenant, error)
}

// SessionStore persists refresh token sessions. It is never cached.
type SessionStore interface {
	Create(ctx context.Context, session *Session) (*Session, error)
	FindByRefreshHash(ctx context.Context, hash string) (*Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ActivityStore persists activity log rows.
type ActivityStore interface {
	Insert(ctx context.Context, entry *ActivityLog) error
}

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Clock returns the current time.
type Clock func() time.Time

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] AUTH", msg, fmt.Sprint(args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] AUTH", msg, fmt.Sprint(args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] AUTH", msg, fmt.Sprint(args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] AUTH", msg, fmt.Sprint(args...))
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
