package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-tenant-auth"
)

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return auth.WrapDatabaseError(err, "rows_affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Tenants is the bun backed auth.TenantStore.
type Tenants struct {
	db bun.IDB
}

var _ auth.TenantStore = (*Tenants)(nil)

func NewTenants(db bun.IDB) *Tenants {
	return &Tenants{db: db}
}

func (t *Tenants) Create(ctx context.Context, tenant *auth.Tenant) (*auth.Tenant, error) {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	tenant.Name = strings.TrimSpace(tenant.Name)
	tenant.CreatedAt = time.Now()

	if _, err := t.db.NewInsert().Model(tenant).Exec(ctx); err != nil {
		return nil, translate(err, "tenants.create", nil)
	}
	return tenant, nil
}

func (t *Tenants) GetByID(ctx context.Context, id uuid.UUID) (*auth.Tenant, error) {
	tenant := new(auth.Tenant)
	err := t.db.NewSelect().Model(tenant).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, translate(err, "tenants.get_by_id", auth.ErrTenantNotFound)
	}
	return tenant, nil
}

func (t *Tenants) GetByName(ctx context.Context, name string) (*auth.Tenant, error) {
	tenant := new(auth.Tenant)
	err := t.db.NewSelect().Model(tenant).Where("?TableAlias.name = ?", name).Limit(1).Scan(ctx)
	if err != nil {
		return nil, translate(err, "tenants.get_by_name", auth.ErrTenantNotFound)
	}
	return tenant, nil
}

// Memberships is the bun backed auth.MembershipStore.
type Memberships struct {
	db bun.IDB
}

var _ auth.MembershipStore = (*Memberships)(nil)

func NewMemberships(db bun.IDB) *Memberships {
	return &Memberships{db: db}
}

// Add inserts (userID, tenantID, role). An existing identical row is a
// duplicate record error.
func (m *Memberships) Add(ctx context.Context, userID, tenantID uuid.UUID, role string) (*auth.UserTenant, error) {
	row := &auth.UserTenant{
		ID:        uuid.New(),
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role,
		CreatedAt: time.Now(),
	}
	if _, err := m.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return nil, translate(err, "memberships.add", nil)
	}
	return row, nil
}

func (m *Memberships) RolesInTenant(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error) {
	var roles []string
	err := m.db.NewSelect().
		Model((*auth.UserTenant)(nil)).
		Column("role").
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Order("created_at ASC", "role ASC").
		Scan(ctx, &roles)
	if err != nil {
		return nil, translate(err, "memberships.roles_in_tenant", nil)
	}
	return roles, nil
}

func (m *Memberships) ListByUser(ctx context.Context, userID uuid.UUID) ([]auth.UserTenant, error) {
	var rows []auth.UserTenant
	err := m.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, translate(err, "memberships.list_by_user", nil)
	}
	return rows, nil
}

// Sessions is the bun backed auth.SessionStore. It is never cached.
type Sessions struct {
	db bun.IDB
}

var _ auth.SessionStore = (*Sessions)(nil)

func NewSessions(db bun.IDB) *Sessions {
	return &Sessions{db: db}
}

func (s *Sessions) Create(ctx context.Context, session *auth.Session) (*auth.Session, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if _, err := s.db.NewInsert().Model(session).Exec(ctx); err != nil {
		return nil, translate(err, "sessions.create", nil)
	}
	return session, nil
}

func (s *Sessions) FindByRefreshHash(ctx context.Context, hash string) (*auth.Session, error) {
	session := new(auth.Session)
	err := s.db.NewSelect().
		Model(session).
		Where("?TableAlias.refresh_token_hash = ?", hash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, translate(err, "sessions.find_by_refresh_hash", auth.ErrSessionNotFound)
	}
	return session, nil
}

func (s *Sessions) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model((*auth.Session)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return translate(err, "sessions.delete", nil)
	}
	return expectRow(res, auth.ErrSessionNotFound)
}

func (s *Sessions) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*auth.Session)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, translate(err, "sessions.delete_all_for_user", nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, auth.WrapDatabaseError(err, "rows_affected")
	}
	return n, nil
}

// Activity is the bun backed auth.ActivityStore.
type Activity struct {
	db bun.IDB
}

var _ auth.ActivityStore = (*Activity)(nil)

func NewActivity(db bun.IDB) *Activity {
	return &Activity{db: db}
}

func (a *Activity) Insert(ctx context.Context, entry *auth.ActivityLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := a.db.NewInsert().Model(entry).Exec(ctx)
	return translate(err, "activity.insert", nil)
}

// ListByUser returns the newest activity rows of userID.
func (a *Activity) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]auth.ActivityLog, error) {
	var rows []auth.ActivityLog
	err := a.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, translate(err, "activity.list_by_user", nil)
	}
	return rows, nil
}
