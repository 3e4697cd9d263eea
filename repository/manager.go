package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-tenant-auth"
)

// Manager bundles the stores sharing one database handle.
type Manager struct {
	db          *bun.DB
	users       *Users
	tenants     *Tenants
	memberships *Memberships
	sessions    *Sessions
	activity    *Activity
}

// NewManager builds every store over db.
func NewManager(db *bun.DB) *Manager {
	return &Manager{
		db:          db,
		users:       NewUsers(db),
		tenants:     NewTenants(db),
		memberships: NewMemberships(db),
		sessions:    NewSessions(db),
		activity:    NewActivity(db),
	}
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}
	if m.users == nil || m.tenants == nil || m.memberships == nil || m.sessions == nil || m.activity == nil {
		return errors.New("repository stores should be initialized")
	}
	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// IdentityTx runs fn with user and membership stores bound to one
// transaction. It satisfies auth.IdentityTxFunc.
func (m *Manager) IdentityTx(ctx context.Context, fn func(ctx context.Context, users auth.UserStore, memberships auth.MembershipStore) error) error {
	return m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, m.users.WithTx(tx), NewMemberships(tx))
	})
}

// Ping checks the database is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close closes the database handle.
func (m *Manager) Close() error {
	return m.db.Close()
}

func (m *Manager) DB() *bun.DB               { return m.db }
func (m *Manager) Users() *Users             { return m.users }
func (m *Manager) Tenants() *Tenants         { return m.tenants }
func (m *Manager) Memberships() *Memberships { return m.memberships }
func (m *Manager) Sessions() *Sessions       { return m.sessions }
func (m *Manager) Activity() *Activity       { return m.activity }
