package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
)

// SQLSTATEs that mean "someone else holds what you need".
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// IsContention reports whether err, or anything it wraps, is a lock wait,
// serialization or deadlock failure.
func IsContention(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
			return true
		}
		return false
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if typed, ok := e.(*pkgerrors.Error); ok {
			if typed.Code() == pkgerrors.CodeContention {
				return true
			}
			continue
		}
		msg := e.Error()
		if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
			return true
		}
	}
	return false
}

// Wrap types a repository failure: lock failures become CONTENTION so
// callers can retry, everything else is INTERNAL.
func Wrap(err error, message string) *pkgerrors.Error {
	if IsContention(err) {
		return pkgerrors.Wrap(pkgerrors.CodeContention, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}

// IsNotFound reports whether err is gorm's missing-record sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	typed := pkgerrors.As(err)
	if typed != nil && typed.Code() != pkgerrors.CodeInternal {
		return err
	}
	if IsContention(err) {
		return pkgerrors.Wrap(pkgerrors.CodeContention, err, "database lock unavailable")
	}
	return err
}
