package errors

import (
	"errors"
	"fmt"
)

// Recoverable-by-caller conditions. The caller decides whether to retry,
// re-offer via the waitlist, or surface the failure to the end user.
var (
	ErrConflict          = errors.New("time window conflicts with a committed interval")
	ErrNoCapacity        = errors.New("no candidate spot is free for the requested window")
	ErrGraceExpired      = errors.New("grace period elapsed before check-in")
	ErrExtensionConflict = errors.New("extension would overlap another claim on the spot")
	ErrPaymentDeclined   = errors.New("payment hold was declined")
	ErrOwnershipMismatch = errors.New("caller does not own the booking or the offer is stale")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrOfferNotFound     = errors.New("swap offer not found")
	ErrWindowNotStarted  = errors.New("booking window has not started yet")

	// ErrStoreUnavailable is the one fatal condition: new commits must halt
	// rather than risk an unobserved double-booking.
	ErrStoreUnavailable = errors.New("persistent store unavailable")
)

// InvalidTransitionError rejects a booking state change not present in the
// transition table, carrying both the current and the attempted state.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid booking transition from %q to %q", e.From, e.To)
}

// NewInvalidTransition builds the error from the two states involved.
func NewInvalidTransition(from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to}
}
