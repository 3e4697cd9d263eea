package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type AuthControllerRoutes struct {
	Register       string
	Login          string
	Refresh        string
	Logout         string
	LogoutSSO      string
	ChangePassword string
	Account        string
	Me             string
	Invitations    string
}

// AuthController exposes Service over fiber. It parses requests, reads
// the refresh cookie and writes responses; every decision is the
// service's.
type AuthController struct {
	Service  *Service
	Resolver *Resolver
	Tokens   *TokenService
	Config   *Config
	Logger   Logger
	Routes   *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger sets the controller logger.
func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(l)
		return c
	}
}

// WithControllerRoutes overrides the default routes.
func WithControllerRoutes(r *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if r != nil {
			c.Routes = r
		}
		return c
	}
}

func NewAuthController(cfg *Config, svc *Service, resolver *Resolver, tokens *TokenService, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Service:  svc,
		Resolver: resolver,
		Tokens:   tokens,
		Config:   cfg,
		Logger:   defLogger{},
		Routes: &AuthControllerRoutes{
			Register:       "/auth/register",
			Login:          "/auth/login",
			Refresh:        "/auth/refresh",
			Logout:         "/auth/logout",
			LogoutSSO:      "/auth/logout/sso",
			ChangePassword: "/auth/password",
			Account:        "/auth/account",
			Me:             "/auth/me",
			Invitations:    "/operator/invitations",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}
	return c
}

// RegisterAuthRoutes mounts every auth route on app.
func RegisterAuthRoutes(app fiber.Router, c *AuthController) {
	cfg := c.Config
	device := DeviceMiddleware()
	tenant := TenantMiddleware(c.Resolver, cfg.TenantHeader, true, c.Logger)
	optionalTenant := TenantMiddleware(c.Resolver, cfg.TenantHeader, false, c.Logger)
	protected := ProtectedRoute(c.Tokens, c.Logger)

	app.Post(c.Routes.Register, device, tenant, c.RegisterPost)
	app.Post(c.Routes.Login, device, tenant, c.LoginPost)
	app.Post(c.Routes.Refresh, device, optionalTenant, c.RefreshPost)
	app.Post(c.Routes.Logout, device, optionalTenant, c.LogoutPost)
	app.Post(c.Routes.LogoutSSO, device, optionalTenant, c.LogoutSSOPost)
	app.Post(c.Routes.ChangePassword, device, optionalTenant, protected, c.ChangePasswordPost)
	app.Delete(c.Routes.Account, device, optionalTenant, protected, c.AccountDelete)
	app.Get(c.Routes.Me, optionalTenant, protected, c.MeGet)
	app.Post(c.Routes.Invitations, device, OperatorMiddleware(cfg.OperatorSecret, c.Logger), c.InvitationPost)
}

// MetricsHandler serves the prometheus registry.
func MetricsHandler(g prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

func (a *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := c.BodyParser(payload); err != nil {
		return writeError(c, a.Logger, fieldError("body", "failed to parse request"))
	}

	res, err := a.Service.Register(c.UserContext(), *payload)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	setRefreshCookie(c, res.Cookie)
	status := fiber.StatusOK
	if res.Outcome == OutcomeCreated {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(res)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		return writeError(c, a.Logger, fieldError("body", "failed to parse request"))
	}

	res, err := a.Service.Login(c.UserContext(), *payload)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	setRefreshCookie(c, res.Cookie)
	return c.JSON(res)
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	res, err := a.Service.Refresh(c.UserContext(), c.Cookies(a.Config.RefreshCookieName))
	if err != nil {
		return writeError(c, a.Logger, err)
	}
	return c.JSON(res)
}

func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	cookie, err := a.Service.Logout(c.UserContext(), c.Cookies(a.Config.RefreshCookieName))
	if err != nil {
		return writeError(c, a.Logger, err)
	}
	setRefreshCookie(c, cookie)
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *AuthController) LogoutSSOPost(c *fiber.Ctx) error {
	cookie, err := a.Service.LogoutSSO(c.UserContext(), c.Cookies(a.Config.RefreshCookieName))
	if err != nil {
		return writeError(c, a.Logger, err)
	}
	setRefreshCookie(c, cookie)
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *AuthController) ChangePasswordPost(c *fiber.Ctx) error {
	payload := new(ChangePasswordRequest)
	if err := c.BodyParser(payload); err != nil {
		return writeError(c, a.Logger, fieldError("body", "failed to parse request"))
	}

	res, err := a.Service.ChangePassword(c.UserContext(), *payload)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	setRefreshCookie(c, a.Service.clearCookie())
	return c.JSON(res)
}

type accountDeletePayload struct {
	Password string `json:"password"`
}

func (a *AuthController) AccountDelete(c *fiber.Ctx) error {
	payload := new(accountDeletePayload)
	if err := c.BodyParser(payload); err != nil {
		return writeError(c, a.Logger, fieldError("body", "failed to parse request"))
	}

	if err := a.Service.DeleteAccount(c.UserContext(), payload.Password); err != nil {
		return writeError(c, a.Logger, err)
	}

	setRefreshCookie(c, a.Service.clearCookie())
	return c.SendStatus(fiber.StatusNoContent)
}

type identityResponse struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	TenantID uuid.UUID `json:"tenant_id"`
	Role     string    `json:"role"`
}

func (a *AuthController) MeGet(c *fiber.Ctx) error {
	p, err := requirePrincipal(c.UserContext())
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	ident, err := a.Service.VerifyIdentity(c.UserContext(), p.UserID)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(identityResponse{
		ID:       ident.ID(),
		Username: ident.Username(),
		Email:    ident.Email(),
		TenantID: p.TenantID,
		Role:     p.Role,
	})
}

// InvitationResponse is returned to operators.
type InvitationResponse struct {
	Code      string `json:"code"`
	ExpiresIn int    `json:"expires_in"`
}

func (a *AuthController) InvitationPost(c *fiber.Ctx) error {
	code, err := a.Service.IssueInvitation(c.UserContext())
	if err != nil {
		return writeError(c, a.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(InvitationResponse{
		Code:      code,
		ExpiresIn: int(a.Config.InvitationTTL.Seconds()),
	})
}
