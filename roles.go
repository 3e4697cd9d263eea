package auth

import "strings"

// Roles are opaque per tenant strings compared by equality. There is no
// hierarchy. DefaultRole can be self assigned, every other role needs an
// invitation code at registration.

// NormalizeRole trims and lowercases role. An empty role means DefaultRole.
func NormalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return DefaultRole
	}
	return role
}

// IsDefaultRole reports whether role needs no invitation.
func IsDefaultRole(role string) bool {
	return NormalizeRole(role) == DefaultRole
}

// HasRole reports whether held contains role.
func HasRole(held []string, role string) bool {
	role = NormalizeRole(role)
	for _, r := range held {
		if r == role {
			return true
		}
	}
	return false
}

// ResolveLoginRole picks the role a login is bound to. held must be in
// membership creation order.
//
// With no membership the caller is not let into the tenant. A requested
// role that is not held reads as NotFound. Otherwise the default role wins
// when held, else the oldest membership.
func ResolveLoginRole(held []string, requested string) (string, error) {
	if len(held) == 0 {
		return "", ErrTenantAccessDenied
	}

	if strings.TrimSpace(requested) != "" {
		role := NormalizeRole(requested)
		if !HasRole(held, role) {
			return "", ErrRoleNotHeld
		}
		return role, nil
	}

	if HasRole(held, DefaultRole) {
		return DefaultRole, nil
	}
	return held[0], nil
}
