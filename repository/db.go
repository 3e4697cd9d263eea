package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-tenant-auth"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to driver at dsn and returns a bun handle.
func Open(driver, dsn string) (*bun.DB, error) {
	switch driver {
	case DriverSQLite, "":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers, a single connection avoids SQLITE_BUSY
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

var models = []any{
	(*auth.Tenant)(nil),
	(*auth.User)(nil),
	(*auth.UserTenant)(nil),
	(*auth.Session)(nil),
	(*auth.ActivityLog)(nil),
}

// Partial unique indexes let a soft-deleted identity keep its email and
// username while a new identity claims them.
var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_users_email_active ON users (email) WHERE deleted_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_users_username_active ON users (username) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS ix_users_email ON users (email)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_user_tenants_membership ON user_tenants (user_id, tenant_id, role)`,
	`CREATE INDEX IF NOT EXISTS ix_sessions_user ON sessions (user_id)`,
	`CREATE INDEX IF NOT EXISTS ix_activity_logs_user ON activity_logs (user_id, created_at)`,
}

// Migrate creates every table and index if missing.
func Migrate(ctx context.Context, db *bun.DB) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, m := range models {
			if _, err := tx.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
				return auth.WrapDatabaseError(err, "migrate")
			}
		}
		for _, stmt := range indexes {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return auth.WrapDatabaseError(err, "migrate")
			}
		}
		return nil
	})
}
