package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the payload of every token we issue. Refresh tokens also
// carry a unique jti and the id of the session they are bound to.
type Claims struct {
	jwt.RegisteredClaims
	Tenant    string    `json:"tid"`
	UserRole  string    `json:"role"`
	Type      TokenType `json:"token_type"`
	SessionID string    `json:"sid,omitempty"`
}

// UserID returns the subject
func (c *Claims) UserID() string {
	return c.RegisteredClaims.Subject
}

// TenantID returns the tenant the token is bound to
func (c *Claims) TenantID() string {
	return c.Tenant
}

// Role returns the role resolved at issuance
func (c *Claims) Role() string {
	return c.UserRole
}

// TokenType returns the token_type claim
func (c *Claims) TokenType() TokenType {
	return c.Type
}

// Expires returns the expiration time
func (c *Claims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

func (c *Claims) userUUID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.Subject)
}

func (c *Claims) tenantUUID() (uuid.UUID, error) {
	return uuid.Parse(c.Tenant)
}

func (c *Claims) wellFormed() bool {
	if c.Type != TokenTypeAccess && c.Type != TokenTypeRefresh {
		return false
	}
	if _, err := c.userUUID(); err != nil {
		return false
	}
	if _, err := c.tenantUUID(); err != nil {
		return false
	}
	if c.UserRole == "" || c.RegisteredClaims.ExpiresAt == nil {
		return false
	}
	if c.Type == TokenTypeRefresh && c.RegisteredClaims.ID == "" {
		return false
	}
	return true
}
