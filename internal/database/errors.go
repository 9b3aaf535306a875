package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

const sqlStateUniqueViolation = "23505"

// pgError extracts SQLSTATE and constraint name from either driver's error type
func pgError(err error) (code, constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName, true
	}
	return "", "", false
}

// IsUniqueViolation reports whether err is a unique constraint violation and names the constraint
func IsUniqueViolation(err error) (string, bool) {
	code, constraint, ok := pgError(err)
	if !ok || code != sqlStateUniqueViolation {
		return "", false
	}
	return constraint, true
}

// IsTransient reports whether err is worth retrying: timeouts, dropped
// connections, serialization failures and deadlocks.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	code, _, ok := pgError(err)
	if !ok {
		return false
	}
	switch {
	case strings.HasPrefix(code, "08"): // connection exception
		return true
	case code == "40001", code == "40P01": // serialization failure, deadlock
		return true
	case code == "57014", code == "57P01", code == "57P03": // query canceled, admin shutdown, cannot connect now
		return true
	}
	return false
}
