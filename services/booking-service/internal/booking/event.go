package booking

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/outbox"
)

type sessionEvent struct {
	BookingID      string `json:"booking_id"`
	TutorID        string `json:"tutor_id"`
	StudentID      string `json:"student_id"`
	Subject        string `json:"subject"`
	Status         string `json:"status"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	TotalCostCents int64  `json:"total_cost_cents"`
	Currency       string `json:"currency"`
	Reason         string `json:"reason,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

func newSessionEvent(eventType string, b model.Booking, at time.Time) (outbox.Event, error) {
	payload, err := json.Marshal(sessionEvent{
		BookingID:      b.ID,
		TutorID:        b.TutorID,
		StudentID:      b.StudentID,
		Subject:        b.Subject,
		Status:         string(b.Status),
		StartTime:      b.Interval.Start.UTC().Format(time.RFC3339),
		EndTime:        b.Interval.End.UTC().Format(time.RFC3339),
		TotalCostCents: b.TotalCostCents,
		Currency:       b.Currency,
		Reason:         b.CancelReason,
		OccurredAt:     at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: outbox.AggregateBooking,
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

func eventTypeFor(status model.BookingStatus) string {
	switch status {
	case model.StatusConfirmed:
		return outbox.EventSessionConfirmed
	case model.StatusCompleted:
		return outbox.EventSessionCompleted
	case model.StatusCancelled:
		return outbox.EventSessionCancelled
	default:
		return outbox.EventSessionBooked
	}
}
