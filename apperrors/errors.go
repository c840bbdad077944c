// Package apperrors defines the error taxonomy shared by the scheduling core and the HTTP layer.
package apperrors

import (
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	// ErrValidation marks malformed or missing input. User correctable.
	ErrValidation = stderrors.New("validation error")
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = stderrors.New("not found")
	// ErrSlotUnavailable marks a slot that is missing, already booked, or lost to a concurrent booking.
	ErrSlotUnavailable = stderrors.New("slot unavailable")
	// ErrConflict marks a state transition that no longer applies, e.g. canceling a canceled appointment.
	ErrConflict = stderrors.New("conflict")
	// ErrUnauthorized marks missing or wrong credentials.
	ErrUnauthorized = stderrors.New("unauthorized")
	// ErrTransientStorage marks an infrastructure failure that may succeed on retry.
	ErrTransientStorage = stderrors.New("transient storage error")
)

// ActiveSlotIndex is the partial unique index allowing one live appointment per slot.
const ActiveSlotIndex = "idx_appointment_active_slot"

// Postgres SQLSTATE codes the core reacts to.
const (
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Validation wraps msg as a validation error.
func Validation(msg string) error {
	return errors.Wrap(ErrValidation, msg)
}

// NotFound wraps msg as a not found error.
func NotFound(msg string) error {
	return errors.Wrap(ErrNotFound, msg)
}

// SlotUnavailable wraps msg as a slot unavailable error.
func SlotUnavailable(msg string) error {
	return errors.Wrap(ErrSlotUnavailable, msg)
}

// Conflict wraps msg as a conflict error.
func Conflict(msg string) error {
	return errors.Wrap(ErrConflict, msg)
}

// Unauthorized wraps msg as an unauthorized error.
func Unauthorized(msg string) error {
	return errors.Wrap(ErrUnauthorized, msg)
}

// Classify maps a storage error onto the taxonomy. Errors that already belong
// to the taxonomy pass through untouched; anything unknown is reported as transient.
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if IsKnown(err) {
		return err
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(ErrNotFound, op)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == ActiveSlotIndex {
				return errors.Wrapf(ErrSlotUnavailable, "%s: %s", op, pgErr.ConstraintName)
			}
			return errors.Wrapf(ErrConflict, "%s: %s", op, pgErr.ConstraintName)
		case pgLockNotAvailable, pgQueryCanceled, pgSerializationFailure, pgDeadlockDetected:
			return errors.Wrapf(ErrTransientStorage, "%s: %s", op, pgErr.Message)
		}
	}

	return errors.Wrapf(ErrTransientStorage, "%s: %v", op, err)
}

// IsKnown reports whether err already carries one of the taxonomy sentinels.
func IsKnown(err error) bool {
	return stderrors.Is(err, ErrValidation) ||
		stderrors.Is(err, ErrNotFound) ||
		stderrors.Is(err, ErrSlotUnavailable) ||
		stderrors.Is(err, ErrConflict) ||
		stderrors.Is(err, ErrUnauthorized) ||
		stderrors.Is(err, ErrTransientStorage)
}
