package auth_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-tenant-auth"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	_, ok := auth.TenantFromContext(ctx)
	assert.False(t, ok)
	_, ok = auth.PrincipalFromContext(ctx)
	assert.False(t, ok)
	assert.False(t, auth.IsOperator(ctx))
	assert.Equal(t, auth.DeviceMeta{}, auth.DeviceFromContext(ctx))

	tid := uuid.New()
	ctx = auth.WithTenant(ctx, tid)
	ctx = auth.WithDevice(ctx, auth.DeviceMeta{UserAgent: "ua", IP: "1.2.3.4"})
	ctx = auth.WithOperator(ctx)

	got, ok := auth.TenantFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, tid, got)
	assert.Equal(t, "ua", auth.DeviceFromContext(ctx).UserAgent)
	assert.True(t, auth.IsOperator(ctx))
}

func TestPrincipalFromClaims(t *testing.T) {
	ts := auth.NewTokenService(testConfig(t), nil)
	sub := testSubject()
	tok, err := ts.IssueAccess(sub)
	require.NoError(t, err)

	claims, err := ts.Validate(tok.Token)
	require.NoError(t, err)

	p, err := auth.PrincipalFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, sub.UserID, p.UserID)
	assert.Equal(t, sub.TenantID, p.TenantID)
	assert.Equal(t, "user", p.Role)

	ctx := auth.WithPrincipal(context.Background(), p)
	back, ok := auth.PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, p, back)

	_, err = auth.PrincipalFromClaims(&auth.Claims{Tenant: "nope"})
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}
