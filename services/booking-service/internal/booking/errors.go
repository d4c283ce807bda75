package booking

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
)

var (
	ErrNotFound          = errors.New("booking not found")
	ErrTutorNotFound     = errors.New("tutor not found")
	ErrForbidden         = errors.New("not a party to this booking")
	ErrInvalidTransition = errors.New("booking status does not allow this change")
	ErrSubjectNotOffered = errors.New("tutor does not offer this subject")
	ErrStartInPast       = errors.New("session must start in the future")

	// ErrCancelledBeforePayment is returned alongside ErrInvalidTransition
	// when payment completes for a booking that was already cancelled.
	ErrCancelledBeforePayment = errors.New("booking was cancelled before payment completed")

	// ErrSlotTaken is returned by a Tx when the store itself rejects an insert
	// that would overlap an active booking of the same tutor.
	ErrSlotTaken = errors.New("slot taken")
)

// WriteConflictError means the store caught a concurrent booking of the same
// slot after the pre-flight check had passed. Conflicts holds the active
// bookings re-read after the failed write.
type WriteConflictError struct {
	TutorID   string
	Candidate model.TimeInterval
	Conflicts []model.Booking
	Err       error
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("write conflict for tutor %s at %s: %v", e.TutorID, e.Candidate, e.Err)
}

func (e *WriteConflictError) Unwrap() error { return e.Err }
