package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-tenant-auth"
)

// Users is the bun backed auth.UserStore.
type Users struct {
	repository.Repository[*auth.User]
	db  bun.IDB
	now func() time.Time
}

var _ auth.UserStore = (*Users)(nil)

// NewUsers returns a Users store over db.
func NewUsers(db *bun.DB) *Users {
	repo := repository.NewRepository[*auth.User](db, repository.ModelHandlers[*auth.User]{
		NewRecord: func() *auth.User { return &auth.User{} },
		GetID: func(u *auth.User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *auth.User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &Users{Repository: repo, db: db, now: time.Now}
}

// WithTx returns a copy of the store whose queries run on tx.
func (u *Users) WithTx(tx bun.IDB) *Users {
	clone := *u
	clone.db = tx
	return &clone
}

func (u *Users) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := u.now()
	user.Email = auth.NormalizeEmail(user.Email)
	user.CreatedAt, user.UpdatedAt = now, now
	user.DeletedAt = nil

	if _, err := u.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, translate(err, "users.create", nil)
	}
	return user, nil
}

// GetByID returns the identity with id. Active rows go through the
// generic repository; soft-deleted ones need an explicit query.
func (u *Users) GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*auth.User, error) {
	if !includeDeleted {
		user, err := u.Repository.GetByIDTx(ctx, u.db, id.String())
		if err != nil {
			return nil, translate(err, "users.get_by_id", auth.ErrIdentityNotFound)
		}
		return user, nil
	}

	user := new(auth.User)
	err := u.db.NewSelect().
		Model(user).
		WhereAllWithDeleted().
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, translate(err, "users.get_by_id", auth.ErrIdentityNotFound)
	}
	return user, nil
}

func (u *Users) GetByEmail(ctx context.Context, email string, includeDeleted bool) (*auth.User, error) {
	return u.getBy(ctx, "email", auth.NormalizeEmail(email), includeDeleted)
}

func (u *Users) GetByUsername(ctx context.Context, username string, includeDeleted bool) (*auth.User, error) {
	return u.getBy(ctx, "username", username, includeDeleted)
}

// getBy prefers an active row, then the most recently deleted one.
func (u *Users) getBy(ctx context.Context, column, value string, includeDeleted bool) (*auth.User, error) {
	user := new(auth.User)
	q := u.db.NewSelect().
		Model(user).
		Where("?TableAlias.? = ?", bun.Ident(column), value)

	if includeDeleted {
		q = q.WhereAllWithDeleted().
			OrderExpr("CASE WHEN ?TableAlias.deleted_at IS NULL THEN 0 ELSE 1 END").
			OrderExpr("?TableAlias.deleted_at DESC")
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, translate(err, "users.get_by_"+column, auth.ErrIdentityNotFound)
	}
	return user, nil
}

func (u *Users) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res, err := u.db.NewUpdate().
		Model((*auth.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", u.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return translate(err, "users.update_password", nil)
	}
	return expectRow(res, auth.ErrIdentityNotFound)
}

func (u *Users) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res, err := u.db.NewDelete().
		Model(&auth.User{}).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return translate(err, "users.soft_delete", nil)
	}
	return expectRow(res, auth.ErrIdentityNotFound)
}

// Restore clears the delete marker of id and stores passwordHash.
func (u *Users) Restore(ctx context.Context, id uuid.UUID, passwordHash string) (*auth.User, error) {
	res, err := u.db.NewUpdate().
		Model((*auth.User)(nil)).
		WhereAllWithDeleted().
		Set("deleted_at = NULL").
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", u.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, translate(err, "users.restore", nil)
	}
	if err := expectRow(res, auth.ErrIdentityNotFound); err != nil {
		return nil, err
	}
	return u.GetByID(ctx, id, false)
}
