package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"chatgate/internal/pkg/errs"
)

// IsUniqueViolation checks if the error is a PostgreSQL unique constraint violation (code 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsForeignKeyViolation checks if the error is a PostgreSQL foreign key violation (code 23503).
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// notFound maps pgx.ErrNoRows to code and wraps anything else as ErrPersistence.
func notFound(err error, code int) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.NewError(code)
	}
	return errs.Wrap(errs.ErrPersistence, err)
}
