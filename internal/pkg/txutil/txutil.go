// internal/pkg/txutil/txutil.go
// Package txutil runs database transactions with bounded retry on
// serialization conflicts. Callers keep their operations idempotent;
// the retry replays the whole function from scratch.
package txutil

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/your-org/erp-backend/internal/pkg/errs"
	"gorm.io/gorm"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// IsSerializationFailure reports whether err is a Postgres
// serialization or deadlock error that is safe to retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

// WithRetry runs fn in a transaction, retrying up to limit times when
// the database reports a serialization conflict. Exhausted retries
// surface as ConcurrencyConflictError.
func WithRetry(db *gorm.DB, log *logrus.Logger, limit int, op string, fn func(tx *gorm.DB) error) error {
	if limit < 1 {
		limit = 1
	}

	var err error
	for attempt := 1; attempt <= limit; attempt++ {
		err = db.Transaction(fn)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
		log.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
		}).Warn("transaction serialization conflict, retrying")
	}

	return &errs.ConcurrencyConflictError{Op: op, Cause: err}
}
