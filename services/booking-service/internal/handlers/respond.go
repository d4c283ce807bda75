package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/storage"
)

type bookingView struct {
	ID             string `json:"id"`
	TutorID        string `json:"tutor_id"`
	StudentID      string `json:"student_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Status         string `json:"status"`
	Subject        string `json:"subject"`
	TotalCostCents int64  `json:"total_cost_cents"`
	Currency       string `json:"currency"`
	Notes          string `json:"notes,omitempty"`
	CancelReason   string `json:"cancel_reason,omitempty"`
	CancelledAt    string `json:"cancelled_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func newBookingView(b model.Booking) bookingView {
	v := bookingView{
		ID:             b.ID,
		TutorID:        b.TutorID,
		StudentID:      b.StudentID,
		StartTime:      formatTime(b.Interval.Start),
		EndTime:        formatTime(b.Interval.End),
		Status:         string(b.Status),
		Subject:        b.Subject,
		TotalCostCents: b.TotalCostCents,
		Currency:       b.Currency,
		Notes:          b.Notes,
		CancelReason:   b.CancelReason,
		CreatedAt:      formatTime(b.CreatedAt),
	}
	if b.CancelledAt != nil {
		v.CancelledAt = formatTime(*b.CancelledAt)
	}
	return v
}

type slotView struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func newSlotView(iv model.TimeInterval) slotView {
	return slotView{StartTime: formatTime(iv.Start), EndTime: formatTime(iv.End)}
}

type conflictResponse struct {
	Error     string                 `json:"error"`
	TutorID   string                 `json:"tutor_id"`
	Available bool                   `json:"available"`
	Conflicts []availability.Summary `json:"conflicts"`
}

func writeConflict(w http.ResponseWriter, report availability.ConflictReport) {
	httpx.WriteJSON(w, http.StatusConflict, conflictResponse{
		Error:     "tutor is not available for the requested time",
		TutorID:   report.TutorID,
		Available: false,
		Conflicts: availability.Summaries(report),
	})
}

// writeDomainError maps service and engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		invalidInterval *model.InvalidIntervalError
		invalidBooking  *availability.InvalidBookingError
	)
	switch {
	case errors.As(err, &invalidInterval):
		httpx.WriteError(w, http.StatusBadRequest, invalidInterval.Error())
	case errors.Is(err, booking.ErrStartInPast):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidBooking):
		logger.Error("booking history inconsistent", "booking_id", invalidBooking.BookingID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "availability could not be determined")
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, booking.ErrTutorNotFound), errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrSubjectNotOffered):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("invalid " + field + " (want RFC3339)")
	}
	return t.UTC(), nil
}
