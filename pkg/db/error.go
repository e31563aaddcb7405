package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// IsDuplicateKeyErr reports a unique-constraint violation on any supported
// dialect. Idempotent inserts rely on it to detect the second writer.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || pgCode(err) == pgUniqueViolation {
		return true
	}
	return containsAny(err.Error(),
		"duplicate key value violates unique constraint",
		"Error 1062",
		"UNIQUE constraint failed",
	)
}

// IsTransientTxErr reports a transaction the database aborted because of
// contention. Re-running it from the start is safe.
func IsTransientTxErr(err error) bool {
	if err == nil {
		return false
	}
	switch pgCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return true
	}
	return containsAny(err.Error(),
		"could not serialize access",
		"deadlock detected",
		"Error 1213",
		"database is locked",
	)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func containsAny(msg string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}
