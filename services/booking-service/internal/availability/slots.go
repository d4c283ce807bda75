package availability

import (
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
)

// AvailableSlots returns the intervals of length duration, stepped by step
// through window, that start no earlier than now and overlap no active
// booking in existing.
func AvailableSlots(tutorID string, window model.TimeInterval, duration, step time.Duration, existing []model.Booking, now time.Time) ([]model.TimeInterval, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	// A non-positive duration or step describes an empty interval.
	if duration <= 0 {
		return nil, &model.InvalidIntervalError{Start: window.Start, End: window.Start.Add(duration)}
	}
	if step <= 0 {
		return nil, &model.InvalidIntervalError{Start: window.Start, End: window.Start.Add(step)}
	}
	if err := validateHistory(tutorID, existing); err != nil {
		return nil, err
	}
	busy := activeBookings(existing)

	var slots []model.TimeInterval
	for t := window.Start.UTC(); !t.Add(duration).After(window.End); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		slot := model.TimeInterval{Start: t, End: t.Add(duration)}
		if !overlapsAny(slot, busy) {
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

func overlapsAny(slot model.TimeInterval, busy []model.Booking) bool {
	for _, b := range busy {
		if b.Interval.Overlaps(slot) {
			return true
		}
	}
	return false
}
