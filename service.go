package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RefreshCookie tells the transport how to set or clear the refresh token
// cookie. The refresh token never travels in a response body.
type RefreshCookie struct {
	Name     string
	Value    string
	Path     string
	MaxAge   int
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	UserID      uuid.UUID     `json:"user_id"`
	TenantID    uuid.UUID     `json:"tenant_id"`
	Role        string        `json:"role"`
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Outcome     string        `json:"outcome,omitempty"`
	Cookie      RefreshCookie `json:"-"`
}

// RefreshResult is returned by Refresh. The refresh token is not rotated.
type RefreshResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ChangePasswordResult reports how many sessions were revoked.
type ChangePasswordResult struct {
	RevokedSessions int64 `json:"revoked_sessions"`
}

// Registration outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeRestored = "restored"
	OutcomeLinked   = "linked"
	OutcomeLoggedIn = "login"
)

// Service composes the resolver, token service, session store and
// invitation gate into the public auth flows. Tenant and principal are
// read from the context.
type Service struct {
	cfg      *Config
	resolver *Resolver
	sessions *Sessions
	tokens   *TokenService
	invites  *InvitationGate
	hasher   PasswordHasher
	pool     *CryptoPool
	activity *ActivityDispatcher
	metrics  *Metrics
	now      Clock
	logger   Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewService returns a Service. Hasher and crypto pool default from cfg,
// activity is discarded until WithActivity is called.
func NewService(cfg *Config, resolver *Resolver, sessions *Sessions, tokens *TokenService, invites *InvitationGate) *Service {
	return &Service{
		cfg:      cfg,
		resolver: resolver,
		sessions: sessions,
		tokens:   tokens,
		invites:  invites,
		hasher:   NewPasswordHasher(cfg),
		pool:     NewCryptoPool(cfg.CryptoWorkers),
		now:      time.Now,
		logger:   defLogger{},
	}
}

func (s *Service) WithLogger(logger Logger) *Service {
	s.logger = normalizeLogger(logger)
	return s
}

// WithHasher overrides the password hasher.
func (s *Service) WithHasher(h PasswordHasher) *Service {
	if h != nil {
		s.hasher = h
	}
	return s
}

// WithCryptoPool overrides the pool used for hashing and signing.
func (s *Service) WithCryptoPool(p *CryptoPool) *Service {
	if p != nil {
		s.pool = p
	}
	return s
}

// WithActivity sets the dispatcher receiving activity events.
func (s *Service) WithActivity(d *ActivityDispatcher) *Service {
	s.activity = d
	return s
}

// WithMetrics sets the metrics sink.
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now Clock) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Login verifies credentials in the context tenant and opens a session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (res *AuthResult, err error) {
	var userID uuid.UUID
	tenantID, _ := TenantFromContext(ctx)
	defer func() { s.track(ctx, ActivityLogin, userID, tenantID, err) }()

	if tenantID, err = requireTenant(ctx); err != nil {
		return nil, err
	}

	if verr := req.Validate(); verr != nil {
		return nil, NewValidationError(verr)
	}

	user, err := s.resolver.FindForLogin(ctx, req.Identifier)
	if err != nil {
		if !IsNotFound(err) {
			s.logger.Error("login lookup failed", "error", err)
			return nil, err
		}
		s.burnVerify(ctx, req.Password)
		return nil, ErrInvalidCredentials
	}
	userID = user.ID

	if err = s.verifyPassword(ctx, req.Password, user.PasswordHash); err != nil {
		return nil, err
	}

	roles, err := s.resolver.RolesInTenant(ctx, user.ID, tenantID)
	if err != nil {
		s.logger.Error("login role lookup failed", "error", err)
		return nil, err
	}

	role, err := ResolveLoginRole(roles, req.Role)
	if err != nil {
		return nil, err
	}

	res, err = s.openSession(ctx, user, tenantID, role)
	if err != nil {
		return nil, err
	}
	res.Outcome = OutcomeLoggedIn
	return res, nil
}

// Refresh mints a new access token from a refresh token. The refresh
// token and its session are left untouched.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (res *RefreshResult, err error) {
	var userID, tenantID uuid.UUID
	defer func() { s.track(ctx, ActivityRefresh, userID, tenantID, err) }()

	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrTokenInvalid
	}

	claims, err := s.tokens.Validate(refreshToken)
	if err != nil {
		return nil, err
	}

	if claims.TokenType() != TokenTypeRefresh {
		return nil, ErrTokenInvalid
	}

	userID, _ = claims.userUUID()
	tenantID, _ = claims.tenantUUID()

	if reqTenant, ok := TenantFromContext(ctx); ok && reqTenant != tenantID {
		return nil, ErrTenantAccessDenied
	}

	session, err := s.sessions.Find(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	if session.UserID != userID {
		s.logger.Warn("refresh token subject does not match session", "session_id", session.ID)
		return nil, ErrTokenInvalid
	}

	if _, err = s.resolver.UserByID(ctx, userID); err != nil {
		if IsNotFound(err) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}

	roles, err := s.resolver.RolesInTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if !HasRole(roles, claims.Role()) {
		return nil, ErrTenantAccessDenied
	}

	access, err := s.pool.Sign(ctx, s.tokens.IssueAccess, TokenSubject{
		UserID:   userID,
		TenantID: tenantID,
		Role:     claims.Role(),
	})
	if err != nil {
		return nil, err
	}

	return &RefreshResult{
		AccessToken: access.Token,
		TokenType:   "Bearer",
		ExpiresAt:   access.ExpiresAt,
	}, nil
}

// Logout deletes the session of refreshToken. A missing session is
// ErrSessionNotFound.
func (s *Service) Logout(ctx context.Context, refreshToken string) (cookie RefreshCookie, err error) {
	var userID uuid.UUID
	tenantID, _ := TenantFromContext(ctx)
	defer func() { s.track(ctx, ActivityLogout, userID, tenantID, err) }()

	if strings.TrimSpace(refreshToken) == "" {
		return RefreshCookie{}, ErrSessionNotFound
	}

	session, err := s.sessions.Close(ctx, refreshToken)
	if err != nil {
		return RefreshCookie{}, err
	}
	userID = session.UserID

	return s.clearCookie(), nil
}

// LogoutSSO is the idempotent cookie variant of Logout. It always asks the
// transport to clear the cookie, even if no session matched.
func (s *Service) LogoutSSO(ctx context.Context, refreshToken string) (RefreshCookie, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return s.clearCookie(), nil
	}

	if _, err := s.Logout(ctx, refreshToken); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return RefreshCookie{}, err
	}
	return s.clearCookie(), nil
}

// ChangePassword replaces the principal's credential and revokes every
// session the principal holds.
func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) (res *ChangePasswordResult, err error) {
	var userID, tenantID uuid.UUID
	defer func() { s.track(ctx, ActivityChangePassword, userID, tenantID, err) }()

	principal, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	userID, tenantID = principal.UserID, principal.TenantID

	if verr := req.Validate(); verr != nil {
		return nil, NewValidationError(verr)
	}

	user, err := s.resolver.UserForUpdate(ctx, principal.UserID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err = s.verifyPassword(ctx, req.OldPassword, user.PasswordHash); err != nil {
		return nil, err
	}

	hash, err := s.pool.Hash(ctx, s.hasher, req.NewPassword)
	if err != nil {
		return nil, err
	}

	if err = s.resolver.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.logger.Error("password update failed", "error", err)
		return nil, err
	}

	revoked, err := s.sessions.CloseAll(ctx, user.ID)
	if err != nil {
		s.logger.Error("session revocation failed", "user_id", user.ID, "error", err)
		return nil, err
	}

	s.logger.Info("password changed", "user_id", user.ID, "revoked_sessions", revoked)
	return &ChangePasswordResult{RevokedSessions: revoked}, nil
}

// VerifyIdentity returns the active identity with userID.
func (s *Service) VerifyIdentity(ctx context.Context, userID uuid.UUID) (Identity, error) {
	user, err := s.resolver.UserByID(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return AsIdentity(user), nil
}

// DeleteAccount soft-deletes the principal after confirming password and
// revokes all of its sessions. Registering again with the same email
// restores the identity.
func (s *Service) DeleteAccount(ctx context.Context, password string) (err error) {
	var userID, tenantID uuid.UUID
	defer func() { s.track(ctx, ActivityDeleteAccount, userID, tenantID, err) }()

	principal, err := requirePrincipal(ctx)
	if err != nil {
		return err
	}
	userID, tenantID = principal.UserID, principal.TenantID

	user, err := s.resolver.UserForUpdate(ctx, principal.UserID)
	if err != nil {
		if IsNotFound(err) {
			return ErrInvalidCredentials
		}
		return err
	}

	if err = s.verifyPassword(ctx, password, user.PasswordHash); err != nil {
		return err
	}

	if err = s.resolver.SoftDelete(ctx, user.ID); err != nil {
		return err
	}

	if _, err = s.sessions.CloseAll(ctx, user.ID); err != nil {
		return err
	}
	return nil
}

// IssueInvitation returns a new invitation code. ctx must carry the
// operator mark.
func (s *Service) IssueInvitation(ctx context.Context) (code string, err error) {
	defer func() { s.track(ctx, ActivityInvitation, uuid.Nil, uuid.Nil, err) }()

	if !IsOperator(ctx) {
		return "", ErrOperatorOnly
	}
	return s.invites.Issue(ctx)
}

func (s *Service) openSession(ctx context.Context, user *User, tenantID uuid.UUID, role string) (*AuthResult, error) {
	sub := TokenSubject{
		UserID:    user.ID,
		TenantID:  tenantID,
		Role:      role,
		SessionID: uuid.New(),
	}

	access, err := s.pool.Sign(ctx, s.tokens.IssueAccess, sub)
	if err != nil {
		return nil, err
	}

	refresh, err := s.pool.Sign(ctx, s.tokens.IssueRefresh, sub)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.Open(ctx, sub.SessionID, user.ID, refresh, DeviceFromContext(ctx)); err != nil {
		s.logger.Error("session create failed", "user_id", user.ID, "error", err)
		return nil, err
	}

	return &AuthResult{
		UserID:      user.ID,
		TenantID:    tenantID,
		Role:        role,
		AccessToken: access.Token,
		TokenType:   "Bearer",
		ExpiresAt:   access.ExpiresAt,
		Cookie:      s.refreshCookie(refresh),
	}, nil
}

func (s *Service) verifyPassword(ctx context.Context, password, hash string) error {
	err := s.pool.Verify(ctx, s.hasher, password, hash)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			s.logger.Warn("password verification failed", "error", err)
		}
		return ErrInvalidCredentials
	}
}

// burnVerify spends the same work as a real verification so unknown
// identifiers are not distinguishable by latency.
func (s *Service) burnVerify(ctx context.Context, password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.HashPassword(uuid.NewString())
	})
	if s.dummyHash != "" {
		_ = s.pool.Verify(ctx, s.hasher, password, s.dummyHash)
	}
}

func (s *Service) refreshCookie(refresh IssuedToken) RefreshCookie {
	return RefreshCookie{
		Name:     s.cfg.RefreshCookieName,
		Value:    refresh.Token,
		Path:     s.cfg.RefreshCookiePath,
		MaxAge:   int(s.tokens.RefreshTTL().Seconds()),
		Expires:  refresh.ExpiresAt,
		Secure:   s.cfg.RefreshCookieSecure,
		HTTPOnly: true,
		SameSite: "Strict",
	}
}

func (s *Service) clearCookie() RefreshCookie {
	return RefreshCookie{
		Name:     s.cfg.RefreshCookieName,
		Value:    "",
		Path:     s.cfg.RefreshCookiePath,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   s.cfg.RefreshCookieSecure,
		HTTPOnly: true,
		SameSite: "Strict",
	}
}

func (s *Service) track(ctx context.Context, typ ActivityType, userID, tenantID uuid.UUID, err error) {
	outcome := OutcomeSuccess
	reason := ""
	if err != nil {
		outcome = OutcomeFailure
		reason = textCodeOf(err)
		if reason == "" {
			reason = "INTERNAL"
		}
	}

	s.metrics.ObserveOperation(typ, outcome)

	if s.activity == nil {
		return
	}
	s.activity.Dispatch(ActivityEvent{
		Type:       typ,
		Outcome:    outcome,
		UserID:     userID,
		TenantID:   tenantID,
		Reason:     reason,
		Device:     DeviceFromContext(ctx),
		OccurredAt: s.now(),
	})
}
