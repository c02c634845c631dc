package repository

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested event or registration does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when storage reports a uniqueness violation on a
// registration write.
var ErrConflict = errors.New("registration conflict")

// ErrPrecondition matches every business-rule rejection. Use errors.Is with it
// to test for the category, or with one of the instances below for a reason.
var ErrPrecondition = errors.New("precondition failed")

// PreconditionError is a business-rule rejection with a human-readable reason.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// Is makes every PreconditionError match ErrPrecondition.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

var (
	ErrNotPublished   = &PreconditionError{Reason: "not published"}
	ErrDeadlinePassed = &PreconditionError{Reason: "deadline passed"}
	ErrNoSeats        = &PreconditionError{Reason: "no seats"}
)

// IsLockTimeout reports whether err is PostgreSQL giving up on a lock wait
// (lock_timeout expiry).
func IsLockTimeout(err error) bool {
	return hasCode(err, pgerrcode.LockNotAvailable)
}

func isUniqueViolation(err error) bool {
	return hasCode(err, pgerrcode.UniqueViolation)
}

func isForeignKeyViolation(err error) bool {
	return hasCode(err, pgerrcode.ForeignKeyViolation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
