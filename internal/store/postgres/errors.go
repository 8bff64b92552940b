package postgres

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cognidex/cognidex/internal/store"
)

// Postgres error classes (first two characters of the SQLSTATE code).
const (
	classDataException      = "22"
	classIntegrityViolation = "23"
	classSyntaxOrAccess     = "42"

	codeUniqueViolation = "23505"
)

// isUniqueViolation reports whether err is a SQLSTATE 23505 unique
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// normalize translates a pgx error into the shared taxonomy. Unique
// violations surface as Conflict so callers can run the idempotency
// check; other constraint, shape, and DDL errors are fatal schema
// violations; connection-level failures circuit-break.
func normalize(backend, op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return store.NewError(store.ErrTimeout, backend, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return store.NewError(store.ErrConflict, backend, op, err)
		case strings.HasPrefix(pgErr.Code, classIntegrityViolation),
			strings.HasPrefix(pgErr.Code, classDataException),
			strings.HasPrefix(pgErr.Code, classSyntaxOrAccess):
			return store.NewError(store.ErrSchemaViolation, backend, op, err)
		}
		return store.NewError(store.ErrTransient, backend, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) {
		return store.NewError(store.ErrUnavailable, backend, op, err)
	}
	if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "failed to connect") {
		return store.NewError(store.ErrUnavailable, backend, op, err)
	}

	return store.NewError(store.ErrTransient, backend, op, err)
}
