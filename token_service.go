package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenSubject is the principal a token is issued for.
type TokenSubject struct {
	UserID    uuid.UUID
	TenantID  uuid.UUID
	Role      string
	SessionID uuid.UUID
}

// IssuedToken is a signed token and its expiry.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenService signs and verifies HS256 tokens. It holds no state besides
// its configuration and never consults storage.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        Clock
	logger     Logger
}

// NewTokenService creates a TokenService from cfg.
func NewTokenService(cfg *Config, logger Logger) *TokenService {
	var aud jwt.ClaimStrings
	if len(cfg.Audience) > 0 {
		aud = make(jwt.ClaimStrings, len(cfg.Audience))
		copy(aud, cfg.Audience)
	}

	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   aud,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
		logger:     normalizeLogger(logger),
	}
}

// WithClock overrides the time source, used by tests.
func (ts *TokenService) WithClock(now Clock) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// AccessTTL returns the access token lifetime.
func (ts *TokenService) AccessTTL() time.Duration { return ts.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (ts *TokenService) RefreshTTL() time.Duration { return ts.refreshTTL }

// IssueAccess mints a short lived access token.
func (ts *TokenService) IssueAccess(sub TokenSubject) (IssuedToken, error) {
	return ts.issue(sub, TokenTypeAccess, ts.accessTTL)
}

// IssueRefresh mints a refresh token with a unique jti, so two refresh
// tokens for the same principal never collide even within one second.
func (ts *TokenService) IssueRefresh(sub TokenSubject) (IssuedToken, error) {
	return ts.issue(sub, TokenTypeRefresh, ts.refreshTTL)
}

func (ts *TokenService) issue(sub TokenSubject, typ TokenType, ttl time.Duration) (IssuedToken, error) {
	now := ts.now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   sub.UserID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Tenant:   sub.TenantID.String(),
		UserRole: sub.Role,
		Type:     typ,
	}

	if typ == TokenTypeRefresh {
		claims.RegisteredClaims.ID = uuid.NewString()
		if sub.SessionID != uuid.Nil {
			claims.SessionID = sub.SessionID.String()
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.signingKey)
	if err != nil {
		ts.logger.Error("token signing failed", "type", typ, "error", err)
		return IssuedToken{}, wrapSigningError(err)
	}

	return IssuedToken{
		Token:     signed,
		ID:        claims.RegisteredClaims.ID,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate verifies signature and claims. It returns ErrTokenExpired when
// the token is past exp and ErrTokenInvalid for every other failure.
func (ts *TokenService) Validate(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		opts = append(opts, jwt.WithAudience(ts.audience...))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		ts.logger.Debug("token validation failed", "error", err)
		return nil, ErrTokenInvalid
	}

	if !token.Valid || !claims.wellFormed() {
		ts.logger.Debug("token claims malformed")
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
