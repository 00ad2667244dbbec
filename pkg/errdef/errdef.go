// Package errdef defines the error kinds surfaced by the messaging core.
// Callers classify failures with errors.Is; the HTTP layer maps kinds to
// status codes.
package errdef

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidParticipants = errors.New("invalid participants")
	ErrAlreadyParticipant  = errors.New("already a participant")
	ErrInvalidBody         = errors.New("invalid message body")
	ErrInvalidParent       = errors.New("invalid parent message")
	ErrThreadTooDeep       = errors.New("thread too deep")
	ErrRateLimited         = errors.New("rate limited")

	// ErrStorageUnavailable marks transient persistence failures. Reads and
	// notification fan-out retry these; user-initiated writes surface them.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Storage wraps a low-level storage error so callers can match it with
// errors.Is(err, ErrStorageUnavailable) while keeping the cause visible.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// Transient reports whether err should be retried by internal retry loops.
func Transient(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
