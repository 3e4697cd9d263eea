// Package auth is a multi-tenant authentication engine: it registers and
// logs in identities, issues access and refresh JWTs, tracks refresh
// sessions and scopes every grant to a tenant and role.
//
// Identities and tenants:
//   - A User is global. Membership rows (UserTenant) grant it one or more
//     roles in a Tenant. Registering into a tenant with an existing email
//     links, restores or logs in the identity instead of duplicating it.
//   - Roles other than DefaultRole need a one-time InvitationGate code.
//
// Tokens and sessions:
//   - Access tokens are short lived and carry the tenant and role. Refresh
//     tokens carry a jti and are bound to a Session row which stores only
//     the SHA-256 of the token. Refresh does not rotate the refresh token.
//   - ChangePassword and DeleteAccount revoke every session of the user.
//
// Ambient pieces:
//   - Resolver lookups go through the cache package when WithLookupCache is
//     set. Sessions are never cached.
//   - A new identity and its first membership are written in one
//     transaction when WithIdentityTx is set.
//   - Activity events are delivered best-effort by ActivityDispatcher; a
//     full queue drops events instead of blocking a flow.
//   - Lifecycle turns failing health probes into a graceful shutdown.
package auth
