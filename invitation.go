package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/goliatone/go-tenant-auth/cache"
)

const (
	invitationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	InvitationCodeLen  = 8
)

// invitationRecord is what a code maps to in the cache.
type invitationRecord struct {
	IssuedAt int64 `msgpack:"issued_at"`
}

// InvitationGate issues and consumes one time codes that gate
// registration with a non default role. Codes are not bound to a user.
type InvitationGate struct {
	codes  *cache.Cache[invitationRecord]
	ttl    time.Duration
	now    Clock
	logger Logger
}

// NewInvitationGate stores codes in store for ttl.
func NewInvitationGate(store cache.Store, ttl time.Duration, logger Logger, opts ...cache.Option) *InvitationGate {
	logger = normalizeLogger(logger)
	if ttl <= 0 {
		ttl = time.Hour
	}
	opts = append([]cache.Option{
		cache.WithName("invitations"),
		cache.WithPrefix("invite:"),
		cache.WithLogger(logger),
	}, opts...)

	return &InvitationGate{
		codes:  cache.New[invitationRecord](store, opts...),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Issue generates and stores a new code.
func (g *InvitationGate) Issue(ctx context.Context) (string, error) {
	code, err := generateCode(InvitationCodeLen)
	if err != nil {
		return "", err
	}

	if err := g.codes.Set(ctx, code, invitationRecord{IssuedAt: g.now().Unix()}, g.ttl); err != nil {
		return "", err
	}

	g.logger.Info("invitation code issued", "expires_in", g.ttl.String())
	return code, nil
}

// Consume reports whether code was present and removes it. A code can be
// consumed exactly once even under concurrent callers.
func (g *InvitationGate) Consume(ctx context.Context, code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != InvitationCodeLen {
		return false
	}
	_, ok := g.codes.Take(ctx, code)
	return ok
}

func generateCode(n int) (string, error) {
	max := big.NewInt(int64(len(invitationAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(invitationAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
