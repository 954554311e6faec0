package errors

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps database errors to AppError instances:
//   - pgx.ErrNoRows → NotFound
//   - unique constraint violations → Conflict
//   - context deadline/cancel → Internal (operational, not user-caused)
//
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeInternal, Message: "Database request interrupted", Cause: err}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return &AppError{Code: ErrCodeConflict, Message: "Record already exists", Cause: pgErr}
		case pgerrcode.ForeignKeyViolation:
			return &AppError{Code: ErrCodeValidation, Message: "Referenced record does not exist", Cause: pgErr}
		default:
			return &AppError{Code: ErrCodeInternal, Message: "A database error occurred", Cause: pgErr}
		}
	}

	return err
}
