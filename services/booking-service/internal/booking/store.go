package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/outbox"
)

// Guard selects how concurrent bookings of one tutor are kept apart.
type Guard string

const (
	// GuardLock serializes check and insert per tutor inside one transaction.
	GuardLock Guard = "lock"
	// GuardConstraint runs the check optimistically and relies on the store's
	// overlap constraint to reject the losing writer.
	GuardConstraint Guard = "constraint"
)

func ParseGuard(raw string) (Guard, error) {
	switch g := Guard(strings.ToLower(strings.TrimSpace(raw))); g {
	case "":
		return GuardLock, nil
	case GuardLock, GuardConstraint:
		return g, nil
	default:
		return "", fmt.Errorf("unknown booking guard %q (want lock or constraint)", raw)
	}
}

type TxOptions struct {
	// LockTutorID, when set, is locked for the lifetime of the transaction.
	LockTutorID string
}

type Store interface {
	WithinTx(ctx context.Context, opts TxOptions, fn func(Tx) error) error
	PartyBookings(ctx context.Context, accountID string, limit int) ([]model.Booking, error)
}

type Tx interface {
	Tutor(ctx context.Context, tutorID string) (model.Tutor, error)
	TutorBookings(ctx context.Context, tutorID string, window model.TimeInterval) ([]model.Booking, error)
	BookingForUpdate(ctx context.Context, bookingID string) (model.Booking, error)
	InsertBooking(ctx context.Context, b model.Booking) (model.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID string, status model.BookingStatus, reason string, at time.Time) (model.Booking, error)
	AttachPaymentIntent(ctx context.Context, bookingID, intentID string) (model.Booking, error)
	// ElapsedActive returns active bookings that ended at or before now,
	// skipping rows locked by other transactions.
	ElapsedActive(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
	// StalePending returns pending bookings created before cutoff, skipping
	// rows locked by other transactions.
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error)
	AppendEvent(ctx context.Context, evt outbox.Event) error
}
