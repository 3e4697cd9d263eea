package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// HashRefreshToken returns the hex SHA-256 of a raw refresh token. Only
// this value is ever persisted.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Sessions wraps a SessionStore with the hashing rule so raw refresh
// tokens never reach storage.
type Sessions struct {
	store  SessionStore
	now    Clock
	logger Logger
}

// NewSessions returns a Sessions backed by store.
func NewSessions(store SessionStore, logger Logger) *Sessions {
	return &Sessions{store: store, now: time.Now, logger: normalizeLogger(logger)}
}

// WithClock overrides the time source.
func (s *Sessions) WithClock(now Clock) *Sessions {
	if now != nil {
		s.now = now
	}
	return s
}

// Open persists a session for refreshToken under id.
func (s *Sessions) Open(ctx context.Context, id, userID uuid.UUID, refresh IssuedToken, device DeviceMeta) (*Session, error) {
	return s.store.Create(ctx, &Session{
		ID:               id,
		UserID:           userID,
		RefreshTokenHash: HashRefreshToken(refresh.Token),
		UserAgent:        device.UserAgent,
		IP:               device.IP,
		ExpiresAt:        refresh.ExpiresAt,
		CreatedAt:        s.now(),
	})
}

// Find returns the live session for refreshToken. A missing or expired
// session yields ErrSessionRevoked.
func (s *Sessions) Find(ctx context.Context, refreshToken string) (*Session, error) {
	session, err := s.store.FindByRefreshHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}

	if session.Expired(s.now()) {
		s.logger.Debug("session expired", "session_id", session.ID)
		return nil, ErrSessionRevoked
	}

	return session, nil
}

// Close deletes the session matching refreshToken. It returns
// ErrSessionNotFound when no session matches.
func (s *Sessions) Close(ctx context.Context, refreshToken string) (*Session, error) {
	session, err := s.store.FindByRefreshHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if err := s.store.Delete(ctx, session.ID); err != nil {
		if IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return session, nil
}

// CloseAll revokes every session of userID.
func (s *Sessions) CloseAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.DeleteAllForUser(ctx, userID)
}
