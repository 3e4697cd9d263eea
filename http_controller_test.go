package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-tenant-auth"
)

type httpHarness struct {
	env *testEnv
	app *fiber.App
}

func newHTTPHarness(t *testing.T) *httpHarness {
	t.Helper()
	env := newTestEnv(t)

	registry := prometheus.NewRegistry()
	env.svc.WithMetrics(auth.NewMetrics(registry))

	app := fiber.New()
	ctrl := auth.NewAuthController(env.cfg, env.svc, env.resolver, env.tokens,
		auth.WithControllerLogger(auth.NewNopLogger()))
	auth.RegisterAuthRoutes(app, ctrl)
	app.Get("/metrics", auth.MetricsHandler(registry))

	return &httpHarness{env: env, app: app}
}

type request struct {
	method  string
	path    string
	body    any
	tenant  string
	bearer  string
	cookie  string
	headers map[string]string
}

func (h *httpHarness) do(t *testing.T, r request) *http.Response {
	t.Helper()

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(r.method, r.path, body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if r.tenant != "" {
		req.Header.Set(h.env.cfg.TenantHeader, r.tenant)
	}
	if r.bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+r.bearer)
	}
	if r.cookie != "" {
		req.AddCookie(&http.Cookie{Name: h.env.cfg.RefreshCookieName, Value: r.cookie})
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	res, err := h.app.Test(req, -1)
	require.NoError(t, err)
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func refreshCookie(res *http.Response, name string) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHTTP_RegisterLoginRefreshLogout(t *testing.T) {
	h := newHTTPHarness(t)
	cookieName := h.env.cfg.RefreshCookieName

	res := h.do(t, request{
		method: fiber.MethodPost,
		path:   "/auth/register",
		tenant: "acme",
		body:   map[string]string{"username": "alice", "email": "alice@example.com", "password": testPassword},
	})
	require.Equal(t, fiber.StatusCreated, res.StatusCode)

	rc := refreshCookie(res, cookieName)
	require.NotNil(t, rc)

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), rc.Value, "refresh token must not be in the body")

	var registered auth.AuthResult
	require.NoError(t, json.Unmarshal(raw, &registered))
	assert.Equal(t, auth.OutcomeCreated, registered.Outcome)
	assert.NotEmpty(t, registered.AccessToken)

	assert.True(t, rc.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, rc.SameSite)
	assert.Equal(t, h.env.cfg.RefreshCookiePath, rc.Path)

	res = h.do(t, request{
		method: fiber.MethodPost,
		path:   "/auth/login",
		tenant: h.env.tenantA.ID.String(),
		body:   map[string]string{"identifier": "alice@example.com", "password": testPassword},
	})
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	login := decode[auth.AuthResult](t, res)
	loginCookie := refreshCookie(res, cookieName)
	require.NotNil(t, loginCookie)

	res = h.do(t, request{method: fiber.MethodPost, path: "/auth/refresh", tenant: "acme", cookie: loginCookie.Value})
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	refreshed := decode[auth.RefreshResult](t, res)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Nil(t, refreshCookie(res, cookieName), "refresh does not rotate the cookie")

	res = h.do(t, request{method: fiber.MethodGet, path: "/auth/me", bearer: login.AccessToken})
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	me := decode[map[string]any](t, res)
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, h.env.tenantA.ID.String(), me["tenant_id"])

	res = h.do(t, request{method: fiber.MethodPost, path: "/auth/logout", cookie: loginCookie.Value})
	require.Equal(t, fiber.StatusNoContent, res.StatusCode)
	cleared := refreshCookie(res, cookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	res = h.do(t, request{method: fiber.MethodPost, path: "/auth/logout", cookie: loginCookie.Value})
	assert.Equal(t, fiber.StatusNotFound, res.StatusCode)

	res = h.do(t, request{method: fiber.MethodPost, path: "/auth/logout/sso", cookie: loginCookie.Value})
	assert.Equal(t, fiber.StatusNoContent, res.StatusCode)

	res = h.do(t, request{method: fiber.MethodPost, path: "/auth/refresh", cookie: loginCookie.Value})
	assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
	body := decode[auth.ErrorResponse](t, res)
	assert.Equal(t, auth.TextCodeSessionRevoked, body.Error.Code)
}

func TestHTTP_TenantHeader(t *testing.T) {
	h := newHTTPHarness(t)
	payload := map[string]string{"identifier": "alice", "password": testPassword}

	res := h.do(t, request{method: fiber.MethodPost, path: "/auth/login", body: payload})
	assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, auth.TextCodeTenantRequired, decode[auth.ErrorResponse](t, res).Error.Code)

	res = h.do(t, request{method: fiber.MethodPost, path: "/auth/login", tenant: "no-such-tenant", body: payload})
	assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
}

func TestHTTP_ErrorMapping(t *testing.T) {
	h := newHTTPHarness(t)
	h.env.register(t, h.env.tenantA, "alice", "alice@example.com", testPassword)

	tests := []struct {
		name   string
		req    request
		status int
		code   string
	}{
		{
			name:   "bad credentials",
			req:    request{method: fiber.MethodPost, path: "/auth/login", tenant: "acme", body: map[string]string{"identifier": "alice", "password": "wrong-password-1"}},
			status: fiber.StatusUnauthorized,
			code:   auth.TextCodeInvalidCreds,
		},
		{
			name:   "role not held",
			req:    request{method: fiber.MethodPost, path: "/auth/login", tenant: "acme", body: map[string]string{"identifier": "alice", "password": testPassword, "role": "admin"}},
			status: fiber.StatusNotFound,
			code:   auth.TextCodeRoleNotHeld,
		},
		{
			name:   "conflict",
			req:    request{method: fiber.MethodPost, path: "/auth/register", tenant: "globex", body: map[string]string{"username": "alice", "email": "other@example.com", "password": testPassword}},
			status: fiber.StatusConflict,
			code:   auth.TextCodeIdentityConflict,
		},
		{
			name:   "invitation required",
			req:    request{method: fiber.MethodPost, path: "/auth/register", tenant: "acme", body: map[string]string{"username": "bob", "email": "bob@example.com", "password": testPassword, "role": "admin"}},
			status: fiber.StatusForbidden,
			code:   auth.TextCodeInvitationInvalid,
		},
		{
			name:   "validation",
			req:    request{method: fiber.MethodPost, path: "/auth/register", tenant: "acme", body: map[string]string{"username": "bob", "email": "bob@example.com", "password": "short"}},
			status: fiber.StatusBadRequest,
			code:   auth.TextCodeValidation,
		},
		{
			name:   "missing bearer",
			req:    request{method: fiber.MethodGet, path: "/auth/me"},
			status: fiber.StatusUnauthorized,
			code:   auth.TextCodeTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.do(t, tt.req)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.code, decode[auth.ErrorResponse](t, res).Error.Code)
		})
	}
}

func TestHTTP_ProtectedRoutes(t *testing.T) {
	h := newHTTPHarness(t)
	reg := h.env.register(t, h.env.tenantA, "alice", "alice@example.com", testPassword)

	t.Run("refresh token is not a bearer token", func(t *testing.T) {
		res := h.do(t, request{method: fiber.MethodGet, path: "/auth/me", bearer: reg.Cookie.Value})
		assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
	})

	t.Run("token bound to another tenant", func(t *testing.T) {
		res := h.do(t, request{method: fiber.MethodGet, path: "/auth/me", tenant: "globex", bearer: reg.AccessToken})
		assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
		assert.Equal(t, auth.TextCodeTenantAccessDenied, decode[auth.ErrorResponse](t, res).Error.Code)
	})

	t.Run("change password", func(t *testing.T) {
		const next = "brand-new-pass-7"
		res := h.do(t, request{
			method: fiber.MethodPost,
			path:   "/auth/password",
			bearer: reg.AccessToken,
			body: map[string]string{
				"old_password":     testPassword,
				"new_password":     next,
				"confirm_password": next,
			},
		})
		require.Equal(t, fiber.StatusOK, res.StatusCode)
		out := decode[auth.ChangePasswordResult](t, res)
		assert.EqualValues(t, 1, out.RevokedSessions)

		res = h.do(t, request{method: fiber.MethodPost, path: "/auth/refresh", cookie: reg.Cookie.Value})
		assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
	})

	t.Run("delete account", func(t *testing.T) {
		res := h.do(t, request{
			method: fiber.MethodDelete,
			path:   "/auth/account",
			bearer: reg.AccessToken,
			body:   map[string]string{"password": "brand-new-pass-7"},
		})
		require.Equal(t, fiber.StatusNoContent, res.StatusCode)

		res = h.do(t, request{method: fiber.MethodGet, path: "/auth/me", bearer: reg.AccessToken})
		assert.Equal(t, fiber.StatusNotFound, res.StatusCode)
	})
}

func TestHTTP_OperatorInvitations(t *testing.T) {
	h := newHTTPHarness(t)

	res := h.do(t, request{method: fiber.MethodPost, path: "/operator/invitations"})
	assert.Equal(t, fiber.StatusForbidden, res.StatusCode)

	res = h.do(t, request{
		method:  fiber.MethodPost,
		path:    "/operator/invitations",
		headers: map[string]string{auth.OperatorHeader: "wrong"},
	})
	assert.Equal(t, fiber.StatusForbidden, res.StatusCode)

	res = h.do(t, request{
		method:  fiber.MethodPost,
		path:    "/operator/invitations",
		headers: map[string]string{auth.OperatorHeader: testOperatorSecret},
	})
	require.Equal(t, fiber.StatusCreated, res.StatusCode)
	inv := decode[auth.InvitationResponse](t, res)
	assert.Len(t, inv.Code, auth.InvitationCodeLen)
	assert.Equal(t, 3600, inv.ExpiresIn)

	res = h.do(t, request{
		method: fiber.MethodPost,
		path:   "/auth/register",
		tenant: "acme",
		body: map[string]string{
			"username":        "opal",
			"email":           "opal@example.com",
			"password":        testPassword,
			"role":            "admin",
			"invitation_code": inv.Code,
		},
	})
	require.Equal(t, fiber.StatusCreated, res.StatusCode)
	assert.Equal(t, "admin", decode[auth.AuthResult](t, res).Role)
}

func TestHTTP_Metrics(t *testing.T) {
	h := newHTTPHarness(t)
	h.do(t, request{method: fiber.MethodPost, path: "/auth/login", tenant: "acme", body: map[string]string{"identifier": "x", "password": "y"}})

	res := h.do(t, request{method: fiber.MethodGet, path: "/metrics"})
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `tenant_auth_operations_total{operation="login",outcome="failure"} 1`))
}
