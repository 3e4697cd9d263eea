package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	auth "github.com/goliatone/go-tenant-auth"
)

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, auth.DefaultRole, auth.NormalizeRole(""))
	assert.Equal(t, auth.DefaultRole, auth.NormalizeRole("   "))
	assert.Equal(t, "admin", auth.NormalizeRole(" Admin "))
	assert.True(t, auth.IsDefaultRole("USER"))
	assert.False(t, auth.IsDefaultRole("editor"))
}

func TestResolveLoginRole(t *testing.T) {
	tests := []struct {
		name      string
		held      []string
		requested string
		want      string
		wantErr   error
	}{
		{name: "no membership", held: nil, wantErr: auth.ErrTenantAccessDenied},
		{name: "no membership with requested role", held: nil, requested: "admin", wantErr: auth.ErrTenantAccessDenied},
		{name: "default wins", held: []string{"editor", "user"}, want: "user"},
		{name: "oldest when default not held", held: []string{"editor", "admin"}, want: "editor"},
		{name: "requested held", held: []string{"user", "admin"}, requested: "Admin", want: "admin"},
		{name: "requested not held", held: []string{"user"}, requested: "admin", wantErr: auth.ErrRoleNotHeld},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.ResolveLoginRole(tt.held, tt.requested)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
