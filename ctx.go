package auth

import (
	"context"

	"github.com/google/uuid"
)

var tenantCtxKey = &contextKey{"tenant"}
var principalCtxKey = &contextKey{"principal"}
var deviceCtxKey = &contextKey{"device"}
var operatorCtxKey = &contextKey{"operator"}

type contextKey struct {
	name string
}

// Principal is the authenticated caller of a request, built from a
// validated access token.
type Principal struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     string
	Claims   *Claims
}

// PrincipalFromClaims builds a Principal from validated claims.
func PrincipalFromClaims(c *Claims) (*Principal, error) {
	uid, err := c.userUUID()
	if err != nil {
		return nil, ErrTokenInvalid
	}
	tid, err := c.tenantUUID()
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return &Principal{UserID: uid, TenantID: tid, Role: c.UserRole, Claims: c}, nil
}

// WithTenant sets the resolved tenant id in ctx.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantCtxKey, tenantID)
}

// TenantFromContext returns the tenant id set by WithTenant.
func TenantFromContext(ctx context.Context) (uuid.UUID, bool) {
	raw, ok := ctx.Value(tenantCtxKey).(uuid.UUID)
	return raw, ok && raw != uuid.Nil
}

// WithPrincipal sets the authenticated principal in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the principal in ctx.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok && raw != nil
}

// WithDevice sets the client metadata recorded on sessions and activity.
func WithDevice(ctx context.Context, d DeviceMeta) context.Context {
	return context.WithValue(ctx, deviceCtxKey, d)
}

// DeviceFromContext returns the client metadata, zero if unset.
func DeviceFromContext(ctx context.Context) DeviceMeta {
	d, _ := ctx.Value(deviceCtxKey).(DeviceMeta)
	return d
}

// WithOperator marks ctx as having passed the operator trust boundary.
func WithOperator(ctx context.Context) context.Context {
	return context.WithValue(ctx, operatorCtxKey, true)
}

// IsOperator reports whether WithOperator was applied to ctx.
func IsOperator(ctx context.Context) bool {
	ok, _ := ctx.Value(operatorCtxKey).(bool)
	return ok
}

func requireTenant(ctx context.Context) (uuid.UUID, error) {
	tid, ok := TenantFromContext(ctx)
	if !ok {
		return uuid.Nil, ErrTenantRequired
	}
	return tid, nil
}

func requirePrincipal(ctx context.Context) (*Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, ErrPrincipalRequired
	}
	return p, nil
}
