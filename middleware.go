package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/goliatone/go-tenant-auth/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener for our claims.
type ValidationListener = jwtware.ValidationListener[*Claims]

// ContextEnricherAdapter stores the principal built from claims in the
// request context.
func ContextEnricherAdapter(c context.Context, claims *Claims) context.Context {
	p, err := PrincipalFromClaims(claims)
	if err != nil {
		return c
	}
	return WithPrincipal(c, p)
}

// RequireAccessToken rejects refresh tokens presented as bearer tokens.
func RequireAccessToken(_ *fiber.Ctx, claims *Claims) error {
	if claims.TokenType() != TokenTypeAccess {
		return ErrTokenInvalid
	}
	return nil
}

// RequireTenantMatch rejects a token bound to a tenant other than the one
// resolved for the request.
func RequireTenantMatch(c *fiber.Ctx, claims *Claims) error {
	tid, ok := TenantFromContext(c.UserContext())
	if !ok {
		return nil
	}
	if claims.TenantID() != tid.String() {
		return ErrTenantAccessDenied
	}
	return nil
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config[*Claims], listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}

// ProtectedRoute validates the bearer access token and attaches the
// principal to the request context.
func ProtectedRoute(tokens *TokenService, logger Logger, listeners ...ValidationListener) fiber.Handler {
	logger = normalizeLogger(logger)
	cfg := jwtware.Config[*Claims]{
		TokenValidator:  tokens,
		ContextKey:      "claims",
		ContextEnricher: ContextEnricherAdapter,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				err = ErrTokenInvalid
			}
			return writeError(c, logger, err)
		},
	}
	RegisterValidationListeners(&cfg, RequireAccessToken, RequireTenantMatch)
	RegisterValidationListeners(&cfg, listeners...)
	return jwtware.New(cfg)
}

// TenantMiddleware resolves the tenant named by header, as an id or a
// name, and stores it in the request context. With required unset a
// missing header passes through.
func TenantMiddleware(resolver *Resolver, header string, required bool, logger Logger) fiber.Handler {
	logger = normalizeLogger(logger)
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(header))
		if raw == "" {
			if required {
				return writeError(c, logger, ErrTenantRequired)
			}
			return c.Next()
		}

		ctx := c.UserContext()
		var tenant *Tenant
		var err error
		if id, perr := uuid.Parse(raw); perr == nil {
			tenant, err = resolver.Tenant(ctx, id)
		} else {
			tenant, err = resolver.TenantByName(ctx, raw)
		}
		if err != nil {
			if IsNotFound(err) {
				return writeError(c, logger, ErrTenantRequired)
			}
			return writeError(c, logger, err)
		}

		c.SetUserContext(WithTenant(ctx, tenant.ID))
		return c.Next()
	}
}

// DeviceMiddleware records the client user agent and address.
func DeviceMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(WithDevice(c.UserContext(), DeviceMeta{
			UserAgent: c.Get(fiber.HeaderUserAgent),
			IP:        c.IP(),
		}))
		return c.Next()
	}
}

// OperatorHeader carries the operator secret.
const OperatorHeader = "X-Operator-Secret"

// OperatorMiddleware admits requests presenting the operator secret and
// marks their context. An empty configured secret admits nobody.
func OperatorMiddleware(secret string, logger Logger) fiber.Handler {
	logger = normalizeLogger(logger)
	want := []byte(secret)
	return func(c *fiber.Ctx) error {
		got := []byte(c.Get(OperatorHeader))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			logger.Warn("operator authentication failed", "ip", c.IP())
			return writeError(c, logger, ErrOperatorOnly)
		}
		c.SetUserContext(WithOperator(c.UserContext()))
		return c.Next()
	}
}
