package availability

import (
	"errors"
	"fmt"
)

// ErrNoSlot is returned by NextAvailableSlot when nothing fits inside the
// lookahead window.
var ErrNoSlot = errors.New("no available slot within lookahead")

// InvalidBookingError reports a history entry the engine refuses to reason
// about. The whole check fails rather than skipping the entry.
type InvalidBookingError struct {
	BookingID string
	Reason    string
}

func (e *InvalidBookingError) Error() string {
	return fmt.Sprintf("invalid booking %q: %s", e.BookingID, e.Reason)
}
