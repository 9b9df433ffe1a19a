package storage

import (
	"context"
	"errors"

	"civictrack/backend/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL error codes the stores branch on.
const (
	pgUniqueViolation      = "23505"
	pgInvalidTextRepr      = "22P02"
	pgQueryCanceled        = "57014"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// classify maps a gorm / driver error onto the apperr taxonomy. Errors that are
// already classified pass through unchanged. The driver message stays in the
// cause and never reaches the public message.
func classify(what string, err error) error {
	if err == nil {
		return nil
	}
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.NotFound, what+" not found", err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.Conflict, what+": already exists", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return apperr.Wrap(apperr.Transient, "service temporarily unavailable", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperr.Wrap(apperr.Conflict, what+": already exists", err)
		case pgInvalidTextRepr:
			return apperr.Wrap(apperr.ValidationError, "malformed identifier", err)
		case pgQueryCanceled, pgSerializationFailure, pgDeadlockDetected:
			return apperr.Wrap(apperr.Transient, "service temporarily unavailable", err)
		}
	}

	return apperr.Wrap(apperr.Internal, what+" failed", err)
}
