// Package store implements PostgreSQL persistence for the library, the task
// queue, chat sessions, and settings. All stores accept an externally-owned
// *pgxpool.Pool via constructor injection; the caller creates and closes the
// pool.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// IsNotFound reports whether err came from a lookup that matched no rows.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// e.g. inserting a channel URL that already exists.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
