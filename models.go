package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity model. Username and email are unique among rows
// that are not soft-deleted.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Username      string     `bun:"username,notnull" json:"username"`
	Email         string     `bun:"email,notnull" json:"email"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the user carries the soft delete marker.
func (u *User) IsDeleted() bool {
	return u != nil && u.DeletedAt != nil && !u.DeletedAt.IsZero()
}

// Tenant is an isolated account namespace.
type Tenant struct {
	bun.BaseModel `bun:"table:tenants,alias:tnt"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name          string     `bun:"name,notnull,unique" json:"name"`
	Description   string     `bun:"description" json:"description,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// UserTenant is a (user, tenant, role) membership. A user may hold
// several roles in the same tenant but never the same row twice.
type UserTenant struct {
	bun.BaseModel `bun:"table:user_tenants,alias:ut"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id"`
	TenantID      uuid.UUID `bun:"tenant_id,notnull,type:uuid" json:"tenant_id"`
	Role          string    `bun:"role,notnull" json:"role"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Session is a live refresh token. Only the SHA-256 hash of the token is
// stored.
type Session struct {
	bun.BaseModel    `bun:"table:sessions,alias:ses"`
	ID               uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID           uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id"`
	RefreshTokenHash string    `bun:"refresh_token_hash,notnull,unique" json:"-"`
	UserAgent        string    `bun:"user_agent" json:"user_agent,omitempty"`
	IP               string    `bun:"ip" json:"ip,omitempty"`
	ExpiresAt        time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ActivityType enumerates the recorded flows.
type ActivityType string

const (
	ActivityRegister       ActivityType = "register"
	ActivityLogin          ActivityType = "login"
	ActivityLogout         ActivityType = "logout"
	ActivityRefresh        ActivityType = "refresh"
	ActivityChangePassword ActivityType = "change_password"
	ActivityDeleteAccount  ActivityType = "delete_account"
	ActivityInvitation     ActivityType = "invitation_issued"
)

// ActivityOutcome is the result of a recorded flow.
type ActivityOutcome string

const (
	OutcomeSuccess ActivityOutcome = "success"
	OutcomeFailure ActivityOutcome = "failure"
)

// ActivityLog is a write only audit row. UserID is nil for anonymous or
// failed attempts.
type ActivityLog struct {
	bun.BaseModel `bun:"table:activity_logs,alias:act"`
	ID            uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	UserID        *uuid.UUID      `bun:"user_id,type:uuid,nullzero" json:"user_id,omitempty"`
	TenantID      *uuid.UUID      `bun:"tenant_id,type:uuid,nullzero" json:"tenant_id,omitempty"`
	Type          ActivityType    `bun:"activity_type,notnull" json:"activity_type"`
	Outcome       ActivityOutcome `bun:"outcome,notnull" json:"outcome"`
	Error         string          `bun:"error_text" json:"error_text,omitempty"`
	UserAgent     string          `bun:"user_agent" json:"user_agent,omitempty"`
	IP            string          `bun:"ip" json:"ip,omitempty"`
	CreatedAt     time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// NormalizeEmail is applied to every email before it is stored or
// looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// identity adapts *User to Identity.
type identity struct {
	user *User
}

func (i identity) ID() string       { return i.user.ID.String() }
func (i identity) Username() string { return i.user.Username }
func (i identity) Email() string    { return i.user.Email }

// AsIdentity exposes u through the Identity interface.
func AsIdentity(u *User) Identity {
	return identity{user: u}
}
