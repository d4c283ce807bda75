package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
)

// ConflictReport is the answer to one availability query. Conflicts are the
// active bookings overlapping the candidate, ordered by start then id.
type ConflictReport struct {
	TutorID   string
	Candidate model.TimeInterval
	Available bool
	Conflicts []model.Booking
}

// CheckAvailability decides whether candidate can be booked for tutorID given
// the tutor's full booking history. Completed and cancelled bookings never
// conflict, and touching intervals do not overlap.
func CheckAvailability(tutorID string, candidate model.TimeInterval, existing []model.Booking) (ConflictReport, error) {
	if err := candidate.Validate(); err != nil {
		return ConflictReport{}, err
	}
	if err := validateHistory(tutorID, existing); err != nil {
		return ConflictReport{}, err
	}

	conflicts := []model.Booking{}
	for _, b := range existing {
		if !b.Status.Active() {
			continue
		}
		if b.Interval.Overlaps(candidate) {
			conflicts = append(conflicts, b)
		}
	}
	sortChronological(conflicts)

	return ConflictReport{
		TutorID:   tutorID,
		Candidate: candidate,
		Available: len(conflicts) == 0,
		Conflicts: conflicts,
	}, nil
}

// NextAvailableSlot returns the earliest interval of length duration starting
// at or after after that lies inside [after, after+lookahead) and overlaps no
// active booking. The search jumps past each blocking booking.
func NextAvailableSlot(tutorID string, after time.Time, duration, lookahead time.Duration, existing []model.Booking) (model.TimeInterval, error) {
	after = after.UTC()
	if duration <= 0 {
		return model.TimeInterval{}, &model.InvalidIntervalError{Start: after, End: after.Add(duration)}
	}
	if lookahead <= 0 {
		return model.TimeInterval{}, ErrNoSlot
	}
	if err := validateHistory(tutorID, existing); err != nil {
		return model.TimeInterval{}, err
	}

	active := activeBookings(existing)
	horizon := after.Add(lookahead)
	start := after
	for {
		candidate := model.TimeInterval{Start: start, End: start.Add(duration)}
		if candidate.End.After(horizon) {
			return model.TimeInterval{}, ErrNoSlot
		}
		blockedUntil := time.Time{}
		for _, b := range active {
			if b.Interval.Overlaps(candidate) && b.Interval.End.After(blockedUntil) {
				blockedUntil = b.Interval.End
			}
		}
		if blockedUntil.IsZero() {
			return candidate, nil
		}
		start = blockedUntil.UTC()
	}
}

func validateHistory(tutorID string, existing []model.Booking) error {
	for _, b := range existing {
		if err := b.Interval.Validate(); err != nil {
			return &InvalidBookingError{BookingID: b.ID, Reason: err.Error()}
		}
		if !b.Status.Valid() {
			return &InvalidBookingError{BookingID: b.ID, Reason: "unknown status " + string(b.Status)}
		}
		if b.TutorID != tutorID {
			return &InvalidBookingError{BookingID: b.ID, Reason: "belongs to tutor " + b.TutorID}
		}
	}
	return nil
}

func activeBookings(existing []model.Booking) []model.Booking {
	var out []model.Booking
	for _, b := range existing {
		if b.Status.Active() {
			out = append(out, b)
		}
	}
	sortChronological(out)
	return out
}

func sortChronological(bookings []model.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if !a.Interval.Start.Equal(b.Interval.Start) {
			return a.Interval.Start.Before(b.Interval.Start)
		}
		return a.ID < b.ID
	})
}
