package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgx/v5/pgconn"

	auth "github.com/goliatone/go-tenant-auth"
)

const pgErrCodeUniqueViolation = "23505"

// isDuplicateKeyError reports a unique constraint violation on postgres
// or sqlite.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrCodeUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func constraintOf(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	msg := err.Error()
	if i := strings.Index(msg, "UNIQUE constraint failed:"); i >= 0 {
		return strings.TrimSpace(msg[i+len("UNIQUE constraint failed:"):])
	}
	return ""
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

// translate maps a storage error to the auth taxonomy. notFound is
// returned for missing rows, uniqueness violations become duplicate
// record errors and everything else a database error.
func translate(err error, op string, notFound error) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		if notFound != nil {
			return notFound
		}
		return auth.WrapDatabaseError(err, op)
	case isDuplicateKeyError(err):
		return auth.NewDuplicateRecordError(err, constraintOf(err))
	default:
		return auth.WrapDatabaseError(err, op)
	}
}
